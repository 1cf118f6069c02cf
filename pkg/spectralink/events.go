// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

// Event is one classified telemetry record extracted from the line stream.
// Events are applied to the state store and then discarded; no history is
// kept beyond the store's bounded sample buffers.
type Event interface {
	// EventName returns a short identifier for logging and capture files.
	EventName() string
}

// disconnectedReading is the sentinel the DS18B20 driver reports for an
// absent sensor (-127). Anything at or below this bound is not a reading.
const disconnectedReading = -100.0

// DualTemperature carries both sensor readings from a combined report.
// Sensor1/Sensor2 connectivity and the monitoring-required flag are only
// present on fault-tolerant firmware lines; nil means "not reported".
type DualTemperature struct {
	Temp1   float64 `cbor:"t1"`
	Temp2   float64 `cbor:"t2"`
	TempMax float64 `cbor:"max"`

	Sensor1Connected *bool `cbor:"s1,omitempty"`
	Sensor2Connected *bool `cbor:"s2,omitempty"`
	TempRequired     *bool `cbor:"req,omitempty"`
}

func (DualTemperature) EventName() string { return "dual_temperature" }

// Sensor1Valid reports whether Temp1 is a real reading rather than the
// disconnected sentinel.
func (e DualTemperature) Sensor1Valid() bool { return e.Temp1 > disconnectedReading }

// Sensor2Valid reports whether Temp2 is a real reading.
func (e DualTemperature) Sensor2Valid() bool { return e.Temp2 > disconnectedReading }

// SingleTemperature carries temperature fields assembled from bracketed
// tokens on an otherwise unrelated line (command ACKs carry these).
type SingleTemperature struct {
	Temp1       *float64 `cbor:"t1,omitempty"`
	Temp2       *float64 `cbor:"t2,omitempty"`
	TempMax     *float64 `cbor:"max,omitempty"`
	Reflector   *uint64  `cbor:"ref,omitempty"`
	SourceLine  string   `cbor:"-"`
}

func (SingleTemperature) EventName() string { return "temperature_fields" }

// ReflectorReading is one pulse-counter report.
type ReflectorReading struct {
	Count     uint64  `cbor:"count"`
	Voltage   float64 `cbor:"v"`
	InstSpeed float64 `cbor:"inst"`
	AvgSpeed  float64 `cbor:"avg"`

	HasVoltage bool `cbor:"-"`
	HasSpeeds  bool `cbor:"-"`
}

func (ReflectorReading) EventName() string { return "reflector" }

// Heartbeat is the periodic system summary line.
type Heartbeat struct {
	UptimeSeconds    uint64  `cbor:"up"`
	Armed            bool    `cbor:"armed"`
	BrakeActive      bool    `cbor:"brake"`
	RelayBrakeActive bool    `cbor:"relay"`
	MaxTemp          float64 `cbor:"max"`
	AlarmActive      bool    `cbor:"alarm"`
	ActiveMotors     int     `cbor:"motors"`
}

func (Heartbeat) EventName() string { return "heartbeat" }

// AlarmRaised marks the controller entering the over-temperature alarm state.
type AlarmRaised struct {
	Temp float64 `cbor:"temp"`
}

func (AlarmRaised) EventName() string { return "alarm_raised" }

// AlarmCleared marks the controller returning below the safe threshold.
type AlarmCleared struct {
	Temp float64 `cbor:"temp"`
}

func (AlarmCleared) EventName() string { return "alarm_cleared" }

// SensorConnectivityChanged is an explicit connect/disconnect marker for a
// temperature sensor (1 or 2).
type SensorConnectivityChanged struct {
	Sensor    int  `cbor:"sensor"`
	Connected bool `cbor:"connected"`
}

func (SensorConnectivityChanged) EventName() string { return "sensor_connectivity" }

// EmergencyStop is the unsolicited emergency-stop marker. The final pulse
// count is only present when the firmware reports it.
type EmergencyStop struct {
	FinalReflectorCount *uint64 `cbor:"final,omitempty"`
	Reason              string  `cbor:"reason,omitempty"`
}

func (EmergencyStop) EventName() string { return "emergency_stop" }

// Unclassified wraps a non-empty line no recognizer matched. It is logged
// at debug level and otherwise ignored.
type Unclassified struct {
	Raw string `cbor:"raw"`
}

func (Unclassified) EventName() string { return "unclassified" }
