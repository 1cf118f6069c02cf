// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"testing"
)

func TestMotorCommands(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (string, error)
		want    string
		wantErr bool
	}{
		{
			name:  "start",
			build: func() (string, error) { return MotorStart(1, 50) },
			want:  "MOTOR:1:START:50",
		},
		{
			name:  "stop",
			build: func() (string, error) { return MotorStop(6) },
			want:  "MOTOR:6:STOP",
		},
		{
			name:  "speed",
			build: func() (string, error) { return MotorSpeed(3, 100) },
			want:  "MOTOR:3:SPEED:100",
		},
		{
			name:    "motor zero",
			build:   func() (string, error) { return MotorStart(0, 50) },
			wantErr: true,
		},
		{
			name:    "motor seven",
			build:   func() (string, error) { return MotorStop(7) },
			wantErr: true,
		},
		{
			name:    "speed above range",
			build:   func() (string, error) { return MotorSpeed(1, 101) },
			wantErr: true,
		},
		{
			name:    "negative speed",
			build:   func() (string, error) { return MotorStart(1, -1) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGroupCommands(t *testing.T) {
	if cmd, err := LevGroupStart(75); err != nil || cmd != "LEV_GROUP:START:75" {
		t.Errorf("LevGroupStart = %q, %v", cmd, err)
	}
	if cmd := LevGroupStop(); cmd != "LEV_GROUP:STOP" {
		t.Errorf("LevGroupStop = %q", cmd)
	}
	if cmd, err := ThrGroupSpeed(0); err != nil || cmd != "THR_GROUP:SPEED:0" {
		t.Errorf("ThrGroupSpeed = %q, %v", cmd, err)
	}
	if _, err := ThrGroupStart(101); err == nil {
		t.Error("group speed above range should fail")
	}
}

func TestCompletionTokensCoverCommands(t *testing.T) {
	// Every simple command's acknowledgement must be recognizable by at
	// least the generic matcher.
	responses := []string{
		"PONG:uptime=5",
		"ARMED [REFLECTOR:0]",
		"DISARMED",
		"ACK:STATUS",
		"BRAKE_ON",
		"RELAY_BRAKE:ON",
		"EMERGENCY_STOP COMPLETE",
		"BUZZER_OFF",
		"REFLECTOR_RESET:OK",
		"TEMP_BYPASS_ENABLED",
		"ERROR:unknown",
	}
	match := completionMatcher(CmdStatus)
	for _, line := range responses {
		if !match(line) {
			t.Errorf("response %q not matched by any completion token", line)
		}
	}
}
