// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"sync"
	"testing"
	"time"
)

type captureSender struct {
	mu   sync.Mutex
	cmds []string
}

func (s *captureSender) SendAsync(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *captureSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

func (s *captureSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = nil
}

func contains(cmds []string, cmd string) bool {
	for _, c := range cmds {
		if c == cmd {
			return true
		}
	}
	return false
}

func newTestMonitor(t *testing.T) (*Monitor, *Store, *captureSender, *time.Time) {
	t.Helper()
	cfg := DefaultConfig()
	store := NewStore(testLogger(), cfg.Safety.SanityDeltaC)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	sender := &captureSender{}
	m := NewMonitor(store, sender, &cfg, testLogger())
	return m, store, sender, &now
}

func TestMonitor_BypassOnTotalSensorLoss(t *testing.T) {
	m, store, sender, now := newTestMonitor(t)

	store.RecordTemperature(1, 30.0)
	store.RecordTemperature(2, 31.0)
	m.Check()
	if contains(sender.sent(), CmdTempBypassOn) {
		t.Fatal("bypass must not engage with live sensors")
	}

	*now = now.Add(11 * time.Second)
	m.Check()
	if !contains(sender.sent(), CmdTempBypassOn) {
		t.Error("bypass should engage when every sensor goes silent")
	}
	if v := store.Snapshot(); v.TempMonitoringRequired {
		t.Error("monitoring requirement should drop")
	}
}

func TestMonitor_BypassLiftsOnRecovery(t *testing.T) {
	m, store, sender, now := newTestMonitor(t)

	store.RecordTemperature(1, 30.0)
	*now = now.Add(11 * time.Second)
	m.Check()

	// Fresh reading through the read path, then the next health pass
	// re-enables monitoring.
	sender.reset()
	store.RecordTemperature(1, 30.5)
	m.Check()
	if !contains(sender.sent(), CmdTempBypassOff) {
		t.Error("bypass should lift when a sensor recovers")
	}
	if v := store.Snapshot(); !v.TempMonitoringRequired {
		t.Error("monitoring requirement should return")
	}
}

func TestMonitor_RecoveryNudges(t *testing.T) {
	m, store, sender, now := newTestMonitor(t)

	store.RecordTemperature(1, 30.0)
	*now = now.Add(11 * time.Second)
	m.Check()
	if !contains(sender.sent(), CmdTempStatus) {
		t.Error("disconnected sensor should be probed")
	}

	// Inside the recovery interval no further probe goes out.
	sender.reset()
	*now = now.Add(2 * time.Second)
	m.Check()
	if contains(sender.sent(), CmdTempStatus) {
		t.Error("probe repeated inside the recovery interval")
	}

	*now = now.Add(10 * time.Second)
	m.Check()
	if !contains(sender.sent(), CmdTempStatus) {
		t.Error("probe should repeat after the recovery interval")
	}
}

func TestMonitor_AlarmClearsOnBypass(t *testing.T) {
	m, store, _, now := newTestMonitor(t)

	store.RecordTemperature(1, 54.0)
	store.SetAlarm(true, 56.0)

	*now = now.Add(31 * time.Second)
	m.Check()

	v := store.Snapshot()
	if v.TempAlarm || v.BuzzerActive {
		t.Error("alarm must clear when silence forces the bypass")
	}
}
