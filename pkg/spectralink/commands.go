// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import "fmt"

// Command builder functions produce the ASCII command strings the controller
// understands. The dispatcher appends the terminating newline; builders only
// validate arguments and format the command text.

// Motor numbering on the controller: 1-4 levitation, 5-6 thrust.
const (
	MinMotor = 1
	MaxMotor = 6

	MinSpeed = 0
	MaxSpeed = 100
)

// Simple commands with no arguments.
const (
	CmdPing               = "PING"
	CmdArm                = "ARM"
	CmdDisarm             = "DISARM"
	CmdStatus             = "STATUS"
	CmdTempStatus         = "TEMP_STATUS"
	CmdTempDual           = "TEMP_DUAL"
	CmdBrakeOn            = "BRAKE_ON"
	CmdBrakeOff           = "BRAKE_OFF"
	CmdRelayBrakeOn       = "RELAY_BRAKE_ON"
	CmdRelayBrakeOff      = "RELAY_BRAKE_OFF"
	CmdEmergencyStop      = "EMERGENCY_STOP"
	CmdBuzzerOff          = "BUZZER_OFF"
	CmdReflectorStatus    = "REFLECTOR_STATUS"
	CmdReflectorReset     = "REFLECTOR_RESET"
	CmdReflectorCalibrate = "REFLECTOR_CALIBRATE"
	CmdTempBypassOn       = "TEMP_BYPASS_ON"
	CmdTempBypassOff      = "TEMP_BYPASS_OFF"
)

func validateMotor(motor int) error {
	if motor < MinMotor || motor > MaxMotor {
		return fmt.Errorf("invalid motor number %d (valid %d-%d)", motor, MinMotor, MaxMotor)
	}
	return nil
}

func validateSpeed(speed int) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("invalid speed %d (valid %d-%d)", speed, MinSpeed, MaxSpeed)
	}
	return nil
}

// MotorStart builds a MOTOR:n:START:speed command.
func MotorStart(motor, speed int) (string, error) {
	if err := validateMotor(motor); err != nil {
		return "", err
	}
	if err := validateSpeed(speed); err != nil {
		return "", err
	}
	return fmt.Sprintf("MOTOR:%d:START:%d", motor, speed), nil
}

// MotorStop builds a MOTOR:n:STOP command.
func MotorStop(motor int) (string, error) {
	if err := validateMotor(motor); err != nil {
		return "", err
	}
	return fmt.Sprintf("MOTOR:%d:STOP", motor), nil
}

// MotorSpeed builds a MOTOR:n:SPEED:speed command.
func MotorSpeed(motor, speed int) (string, error) {
	if err := validateMotor(motor); err != nil {
		return "", err
	}
	if err := validateSpeed(speed); err != nil {
		return "", err
	}
	return fmt.Sprintf("MOTOR:%d:SPEED:%d", motor, speed), nil
}

// LevGroupStart builds a LEV_GROUP:START:speed command (motors 1-4).
func LevGroupStart(speed int) (string, error) {
	if err := validateSpeed(speed); err != nil {
		return "", err
	}
	return fmt.Sprintf("LEV_GROUP:START:%d", speed), nil
}

// LevGroupStop builds a LEV_GROUP:STOP command.
func LevGroupStop() string { return "LEV_GROUP:STOP" }

// LevGroupSpeed builds a LEV_GROUP:SPEED:speed command.
func LevGroupSpeed(speed int) (string, error) {
	if err := validateSpeed(speed); err != nil {
		return "", err
	}
	return fmt.Sprintf("LEV_GROUP:SPEED:%d", speed), nil
}

// ThrGroupStart builds a THR_GROUP:START:speed command (motors 5-6).
func ThrGroupStart(speed int) (string, error) {
	if err := validateSpeed(speed); err != nil {
		return "", err
	}
	return fmt.Sprintf("THR_GROUP:START:%d", speed), nil
}

// ThrGroupStop builds a THR_GROUP:STOP command.
func ThrGroupStop() string { return "THR_GROUP:STOP" }

// ThrGroupSpeed builds a THR_GROUP:SPEED:speed command.
func ThrGroupSpeed(speed int) (string, error) {
	if err := validateSpeed(speed); err != nil {
		return "", err
	}
	return fmt.Sprintf("THR_GROUP:SPEED:%d", speed), nil
}

// completionTokens are substrings whose presence in accumulated response
// text signals that a command's response is complete. The controller tags
// most acknowledgements with one of these; ACK: is the generic fallback
// echoed for every accepted command.
var completionTokens = []string{
	"MOTOR_STARTED", "MOTOR_STOPPED", "MOTOR_SPEED",
	"LEV_GROUP_", "THR_GROUP_",
	"ARMED", "DISARMED",
	"RELAY_BRAKE:", "BRAKE_",
	"EMERGENCY_STOP",
	"REFLECTOR_RESET", "REFLECTOR_CALIBRATION", "REFLECTOR_FULL",
	"BUZZER_OFF", "TEMP_BYPASS",
	"PONG", "ACK:", "ERROR:",
}

// CompletionTokens returns the response tokens the dispatcher waits for.
// The slice is shared; callers must not modify it.
func CompletionTokens() []string { return completionTokens }
