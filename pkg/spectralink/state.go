// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Sample buffer bounds. Samples are appended at most every 0.5s; alarm
// evaluation always uses the latest reading, never the buffer.
const (
	maxTempSamples  = 200
	maxSpeedSamples = 500

	sampleMinGap = 500 * time.Millisecond
)

// TempSample is one downsampled temperature history entry.
type TempSample struct {
	At   time.Time `json:"at"`
	Temp float64   `json:"temp"`
}

// SpeedSample is one downsampled reflector speed history entry.
type SpeedSample struct {
	At    time.Time `json:"at"`
	Count uint64    `json:"count"`
	Speed float64   `json:"speed"`
}

// sensorHealth tracks per-source liveness. Records persist process-wide;
// connectivity flips forward (silence) in the health monitor and backward
// (fresh reading) in the classifier's update path.
type sensorHealth struct {
	lastSeen         time.Time
	connected        bool
	failureCount     uint32
	recoveryAttempts uint32
	lastRecovery     time.Time
}

// StateView is a point-in-time copy of all link-derived facts, taken under
// a single lock acquisition so readers never observe a torn update.
type StateView struct {
	Connected bool `json:"connected"`

	Armed            bool `json:"armed"`
	BrakeActive      bool `json:"brake_active"`
	RelayBrakeActive bool `json:"relay_brake_active"`

	Sensor1Temp      float64 `json:"sensor1_temp"`
	Sensor2Temp      float64 `json:"sensor2_temp"`
	CurrentTemp      float64 `json:"current_temp"`
	MaxTempReached   float64 `json:"max_temp_reached"`
	Sensor1Connected bool    `json:"sensor1_connected"`
	Sensor2Connected bool    `json:"sensor2_connected"`

	TempMonitoringRequired bool `json:"temp_monitoring_required"`
	TempAlarm              bool `json:"temp_alarm"`
	BuzzerActive           bool `json:"buzzer_active"`
	AlarmCount             int  `json:"alarm_count"`

	ReflectorCount     uint64  `json:"reflector_count"`
	ReflectorVoltage   float64 `json:"reflector_voltage"`
	ReflectorInstSpeed float64 `json:"reflector_inst_speed"`
	ReflectorAvgSpeed  float64 `json:"reflector_avg_speed"`
	ReflectorConnected bool    `json:"reflector_connected"`

	EmergencyStopped    bool    `json:"emergency_stopped"`
	FinalReflectorCount *uint64 `json:"final_reflector_count,omitempty"`

	Commands          uint64     `json:"commands"`
	Errors            uint64     `json:"errors"`
	LastResponse      *time.Time `json:"last_response,omitempty"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	ControllerUptime  uint64     `json:"controller_uptime_seconds"`
	StartedAt         time.Time  `json:"started_at"`
}

// Store is the single mutually-exclusive region holding all link-derived
// state. Mutation happens only through the named operations below; the lock
// is never held across I/O.
type Store struct {
	mu  sync.Mutex
	log *slog.Logger

	sanityDeltaC float64
	now          func() time.Time

	connected bool

	armed            bool
	brakeActive      bool
	relayBrakeActive bool

	temp1, temp2   float64
	currentTemp    float64
	maxTempReached float64
	haveTemp1      bool
	haveTemp2      bool

	sensor1   sensorHealth
	sensor2   sensorHealth
	reflector sensorHealth

	tempRequired bool
	tempAlarm    bool
	buzzerActive bool
	alarmCount   int

	reflectorCount     uint64
	reflectorVoltage   float64
	reflectorInstSpeed float64
	reflectorAvgSpeed  float64

	emergencyStopped bool
	finalReflector   *uint64

	commands          uint64
	errors            uint64
	lastResponse      time.Time
	reconnectAttempts int
	controllerUptime  uint64
	startedAt         time.Time

	tempSamples  []TempSample
	speedSamples []SpeedSample
}

// NewStore creates a state store. The ambient temperature pre-fill matches
// the controller's power-on default.
func NewStore(log *slog.Logger, sanityDeltaC float64) *Store {
	return &Store{
		log:            log.With("component", "state"),
		sanityDeltaC:   sanityDeltaC,
		now:            time.Now,
		temp1:          25.0,
		temp2:          25.0,
		currentTemp:    25.0,
		maxTempReached: 25.0,
		tempRequired:   true,
		startedAt:      time.Now(),
	}
}

// Snapshot returns a consistent copy of all state fields.
func (s *Store) Snapshot() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := StateView{
		Connected:              s.connected,
		Armed:                  s.armed,
		BrakeActive:            s.brakeActive,
		RelayBrakeActive:       s.relayBrakeActive,
		Sensor1Temp:            s.temp1,
		Sensor2Temp:            s.temp2,
		CurrentTemp:            s.currentTemp,
		MaxTempReached:         s.maxTempReached,
		Sensor1Connected:       s.sensor1.connected,
		Sensor2Connected:       s.sensor2.connected,
		TempMonitoringRequired: s.tempRequired,
		TempAlarm:              s.tempAlarm,
		BuzzerActive:           s.buzzerActive,
		AlarmCount:             s.alarmCount,
		ReflectorCount:         s.reflectorCount,
		ReflectorVoltage:       s.reflectorVoltage,
		ReflectorInstSpeed:     s.reflectorInstSpeed,
		ReflectorAvgSpeed:      s.reflectorAvgSpeed,
		ReflectorConnected:     s.reflector.connected,
		EmergencyStopped:       s.emergencyStopped,
		Commands:               s.commands,
		Errors:                 s.errors,
		ReconnectAttempts:      s.reconnectAttempts,
		ControllerUptime:       s.controllerUptime,
		StartedAt:              s.startedAt,
	}
	if s.finalReflector != nil {
		n := *s.finalReflector
		v.FinalReflectorCount = &n
	}
	if !s.lastResponse.IsZero() {
		t := s.lastResponse
		v.LastResponse = &t
	}
	return v
}

// RecordTemperature applies one sensor reading. It returns false when the
// reading fails the sanity bound (delta from the previous accepted value
// above the configured limit); the stored value is then left unchanged.
// A valid reading marks the sensor connected immediately.
func (s *Store) RecordTemperature(sensor int, temp float64) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *float64
	var have *bool
	var health *sensorHealth
	switch sensor {
	case 1:
		prev, have, health = &s.temp1, &s.haveTemp1, &s.sensor1
	case 2:
		prev, have, health = &s.temp2, &s.haveTemp2, &s.sensor2
	default:
		return false
	}

	if *have && math.Abs(temp-*prev) > s.sanityDeltaC {
		health.failureCount++
		s.log.Warn("temperature reading rejected by sanity bound",
			"sensor", sensor, "reading", temp, "previous", *prev)
		return false
	}

	*prev = temp
	*have = true
	health.lastSeen = now
	if !health.connected {
		health.connected = true
		s.log.Info("sensor recovered", "sensor", sensor, "temp", temp)
	}
	s.recomputeTempLocked()
	s.appendTempSampleLocked(now)
	return true
}

// recomputeTempLocked derives the working temperature (max of connected
// sensors) and the high-water mark. Caller holds the lock.
func (s *Store) recomputeTempLocked() {
	switch {
	case s.sensor1.connected && s.sensor2.connected:
		s.currentTemp = math.Max(s.temp1, s.temp2)
	case s.sensor1.connected:
		s.currentTemp = s.temp1
	case s.sensor2.connected:
		s.currentTemp = s.temp2
	}
	if s.currentTemp > s.maxTempReached {
		s.maxTempReached = s.currentTemp
	}
}

func (s *Store) appendTempSampleLocked(now time.Time) {
	if n := len(s.tempSamples); n > 0 && now.Sub(s.tempSamples[n-1].At) < sampleMinGap {
		return
	}
	s.tempSamples = append(s.tempSamples, TempSample{At: now, Temp: s.currentTemp})
	if len(s.tempSamples) > maxTempSamples {
		s.tempSamples = s.tempSamples[len(s.tempSamples)-maxTempSamples:]
	}
}

// RecordReflector applies one pulse-counter report and marks the reflector
// channel alive.
func (s *Store) RecordReflector(count uint64, voltage, instSpeed, avgSpeed float64, hasVoltage, hasSpeeds bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reflectorCount = count
	if hasVoltage {
		s.reflectorVoltage = voltage
	}
	if hasSpeeds {
		s.reflectorInstSpeed = instSpeed
		s.reflectorAvgSpeed = avgSpeed
	}
	s.reflector.lastSeen = now
	if !s.reflector.connected {
		s.reflector.connected = true
		s.log.Info("reflector channel recovered", "count", count)
	}

	if n := len(s.speedSamples); n == 0 || now.Sub(s.speedSamples[n-1].At) >= sampleMinGap {
		s.speedSamples = append(s.speedSamples, SpeedSample{At: now, Count: count, Speed: s.reflectorInstSpeed})
		if len(s.speedSamples) > maxSpeedSamples {
			s.speedSamples = s.speedSamples[len(s.speedSamples)-maxSpeedSamples:]
		}
	}
}

// SetAlarm records the controller's over-temperature alarm state. Raising
// while the fault-tolerant bypass is active is ignored.
func (s *Store) SetAlarm(active bool, temp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active && !s.tempRequired {
		s.log.Warn("alarm line ignored while temperature monitoring bypassed", "temp", temp)
		return
	}
	if active == s.tempAlarm {
		return
	}
	s.tempAlarm = active
	s.buzzerActive = active
	if active {
		s.alarmCount++
		if temp > s.maxTempReached {
			s.maxTempReached = temp
		}
		if temp > s.currentTemp {
			s.currentTemp = temp
		}
		s.log.Warn("temperature alarm raised", "temp", temp, "count", s.alarmCount)
	} else {
		s.log.Info("temperature alarm cleared", "temp", temp)
	}
}

// SetSensorConnectivity applies an explicit connect/disconnect marker for
// temperature sensor 1 or 2.
func (s *Store) SetSensorConnectivity(sensor int, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var health *sensorHealth
	switch sensor {
	case 1:
		health = &s.sensor1
	case 2:
		health = &s.sensor2
	default:
		return
	}
	if health.connected == connected {
		return
	}
	health.connected = connected
	if connected {
		health.lastSeen = s.now()
	} else {
		health.failureCount++
	}
	s.log.Info("sensor connectivity changed", "sensor", sensor, "connected", connected)
}

// ApplyHeartbeat folds the periodic system summary into the store.
func (s *Store) ApplyHeartbeat(hb Heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = hb.Armed
	s.brakeActive = hb.BrakeActive
	s.relayBrakeActive = hb.RelayBrakeActive
	s.controllerUptime = hb.UptimeSeconds
	if hb.MaxTemp > s.maxTempReached {
		s.maxTempReached = hb.MaxTemp
	}
	if s.tempRequired && hb.AlarmActive != s.tempAlarm {
		s.tempAlarm = hb.AlarmActive
		s.buzzerActive = hb.AlarmActive
		if hb.AlarmActive {
			s.alarmCount++
			s.log.Warn("temperature alarm raised via heartbeat", "temp", hb.MaxTemp)
		}
	}
}

// SetSystemFlags records arming/brake state changes confirmed by command
// acknowledgements.
func (s *Store) SetSystemFlags(armed, brakeActive, relayBrakeActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = armed
	s.brakeActive = brakeActive
	s.relayBrakeActive = relayBrakeActive
}

// SetArmed records the armed flag alone.
func (s *Store) SetArmed(armed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = armed
}

// SetBrake records the software brake flag.
func (s *Store) SetBrake(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brakeActive = active
}

// SetRelayBrake records the relay brake flag. Dropping the relay disarms.
func (s *Store) SetRelayBrake(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayBrakeActive = active
	if !active {
		s.armed = false
	}
}

// SetBuzzer records the buzzer state independently of the alarm (the
// buzzer can be silenced while the alarm stays active).
func (s *Store) SetBuzzer(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buzzerActive = active
}

// RecordEmergencyStop latches the emergency-stop state.
func (s *Store) RecordEmergencyStop(finalCount *uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencyStopped = true
	s.armed = false
	s.brakeActive = true
	s.relayBrakeActive = false
	if finalCount != nil {
		n := *finalCount
		s.finalReflector = &n
	}
	s.log.Warn("emergency stop recorded", "final_reflector", finalCount)
}

// ClearEmergencyStop releases the latch (a successful ARM implies the
// operator has reset the controller).
func (s *Store) ClearEmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencyStopped = false
	s.finalReflector = nil
}

// SetConnected publishes the link state.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// SetReconnectAttempts mirrors the manager's attempt counter for status
// reporting.
func (s *Store) SetReconnectAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectAttempts = n
}

// NoteCommand counts one issued command.
func (s *Store) NoteCommand() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands++
}

// NoteResponse records the arrival time of a command response.
func (s *Store) NoteResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponse = s.now()
}

// NoteError counts one link-level error.
func (s *Store) NoteError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

// TempHistory returns a copy of the downsampled temperature buffer.
func (s *Store) TempHistory() []TempSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TempSample, len(s.tempSamples))
	copy(out, s.tempSamples)
	return out
}

// SpeedHistory returns a copy of the downsampled speed buffer.
func (s *Store) SpeedHistory() []SpeedSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpeedSample, len(s.speedSamples))
	copy(out, s.speedSamples)
	return out
}

// staleReport describes connectivity flips performed by ExpireStale.
type staleReport struct {
	Sensor1Dropped   bool
	Sensor2Dropped   bool
	ReflectorDropped bool
}

// ExpireStale flips sources to disconnected when they have been silent
// longer than timeout. Only the forward direction happens here; recovery is
// observed by the classifier when fresh data arrives.
func (s *Store) ExpireStale(timeout time.Duration) staleReport {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var r staleReport
	expire := func(h *sensorHealth) bool {
		if h.connected && now.Sub(h.lastSeen) > timeout {
			h.connected = false
			h.failureCount++
			return true
		}
		return false
	}
	r.Sensor1Dropped = expire(&s.sensor1)
	r.Sensor2Dropped = expire(&s.sensor2)
	r.ReflectorDropped = expire(&s.reflector)
	return r
}

// RecomputeMode derives tempMonitoringRequired from sensor connectivity.
// On the transition into the bypass any active alarm clears; the return
// values report (required, changed) so the health monitor can log it.
func (s *Store) RecomputeMode() (required, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	required = s.sensor1.connected || s.sensor2.connected
	changed = required != s.tempRequired
	s.tempRequired = required
	if changed && !required {
		s.tempAlarm = false
		s.buzzerActive = false
	}
	return required, changed
}

// RecoveryDue reports whether a recovery nudge should be issued for the
// given sensor and records the attempt when due.
func (s *Store) RecoveryDue(sensor int, interval time.Duration) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var health *sensorHealth
	switch sensor {
	case 1:
		health = &s.sensor1
	case 2:
		health = &s.sensor2
	default:
		return false
	}
	if health.connected {
		return false
	}
	if !health.lastRecovery.IsZero() && now.Sub(health.lastRecovery) < interval {
		return false
	}
	health.lastRecovery = now
	health.recoveryAttempts++
	return true
}
