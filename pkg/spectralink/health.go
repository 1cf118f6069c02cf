// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// asyncSender is the slice of the dispatcher the monitor needs.
type asyncSender interface {
	SendAsync(cmd string) error
}

// Monitor periodically infers per-sensor liveness from reading silence. It
// only flips sensors to disconnected; recovery happens in the read path
// when fresh data arrives. When every temperature sensor is gone it
// switches the controller into the temperature bypass so the system keeps
// running on reflector data alone, and switches back the moment a sensor
// returns.
type Monitor struct {
	store  *Store
	sender asyncSender
	log    *slog.Logger

	interval         time.Duration
	sensorTimeout    time.Duration
	recoveryInterval time.Duration
	divergenceC      float64
	warningC         float64

	warnedHot bool
}

// NewMonitor builds a health monitor over the shared state.
func NewMonitor(store *Store, sender asyncSender, cfg *Config, log *slog.Logger) *Monitor {
	return &Monitor{
		store:            store,
		sender:           sender,
		log:              log.With("component", "health"),
		interval:         cfg.Safety.HealthInterval(),
		sensorTimeout:    cfg.Safety.SensorTimeout(),
		recoveryInterval: cfg.Safety.RecoveryInterval(),
		divergenceC:      cfg.Safety.DivergenceC,
		warningC:         cfg.Safety.WarningTempC,
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check performs one health pass: expire silent sources, reconcile the
// monitoring mode with the controller, nudge dead sensors, and flag
// diverging readings.
func (m *Monitor) Check() {
	report := m.store.ExpireStale(m.sensorTimeout)
	if report.Sensor1Dropped {
		m.log.Warn("sensor silent past timeout, marking disconnected", "sensor", 1)
	}
	if report.Sensor2Dropped {
		m.log.Warn("sensor silent past timeout, marking disconnected", "sensor", 2)
	}
	if report.ReflectorDropped {
		m.log.Warn("reflector channel silent past timeout")
	}

	required, changed := m.store.RecomputeMode()
	if changed {
		if required {
			m.log.Info("temperature sensor back, re-enabling temperature monitoring")
			m.nudge(CmdTempBypassOff)
		} else {
			m.log.Warn("all temperature sensors down, enabling temperature bypass")
			m.nudge(CmdTempBypassOn)
		}
	}

	for _, sensor := range []int{1, 2} {
		if m.store.RecoveryDue(sensor, m.recoveryInterval) {
			m.log.Info("probing disconnected sensor", "sensor", sensor)
			m.nudge(CmdTempStatus)
		}
	}

	m.checkDivergence()
	m.checkWarningTemp()
}

func (m *Monitor) nudge(cmd string) {
	if err := m.sender.SendAsync(cmd); err != nil {
		m.log.Warn("health command not queued", "cmd", cmd, "err", err)
	}
}

// checkDivergence warns when both sensors are live but disagree by more
// than the configured bound, which usually means one is drifting toward
// failure.
func (m *Monitor) checkDivergence() {
	v := m.store.Snapshot()
	if !v.Sensor1Connected || !v.Sensor2Connected {
		return
	}
	if delta := math.Abs(v.Sensor1Temp - v.Sensor2Temp); delta > m.divergenceC {
		m.log.Warn("temperature sensors diverging",
			"sensor1", v.Sensor1Temp, "sensor2", v.Sensor2Temp, "delta", delta)
	}
}

// checkWarningTemp logs once per excursion above the warning threshold.
func (m *Monitor) checkWarningTemp() {
	v := m.store.Snapshot()
	hot := v.TempMonitoringRequired && v.CurrentTemp >= m.warningC
	if hot && !m.warnedHot {
		m.log.Warn("temperature above warning threshold",
			"temp", v.CurrentTemp, "threshold", m.warningC)
	}
	m.warnedHot = hot
}
