// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"regexp"
	"strconv"
	"strings"
)

// Line recognizers, tried in order. The first match wins; one line can
// still yield more than one event (a combined heartbeat carries both
// temperature and reflector data). Order matters: HB_DUAL embeds the same
// bracket fields as DUAL_TEMP, and REFLECTOR_STATUS must not be eaten by
// the bare REFLECTOR_DETECTED prefix.
var (
	reDualTemp = regexp.MustCompile(`^DUAL_TEMP \[TEMP1:(-?[\d.]+)\] \[TEMP2:(-?[\d.]+)\] \[MAX:(-?[\d.]+)\]`)
	reHBDual   = regexp.MustCompile(`^HB_DUAL \[TEMP1:(-?[\d.]+)\] \[TEMP2:(-?[\d.]+)\] \[MAX:(-?[\d.]+)\] \[REFLECTOR:(\d+)\] \[REF_SPEED:(-?[\d.]+)\]`)
	reRefDet   = regexp.MustCompile(`^REFLECTOR_DETECTED:(\d+)(?: \[VOLTAGE:(-?[\d.]+)V\])?(?: \[SPEED:(-?[\d.]+) ?rpm\])?`)
	reRefStat  = regexp.MustCompile(`^REFLECTOR_STATUS \[COUNT:(\d+)\] \[VOLTAGE:(-?[\d.]+)V?\] \[STATE:(\w+)\] \[AVG_SPEED:(-?[\d.]+)(?: ?rpm)?\] \[INST_SPEED:(-?[\d.]+)(?: ?rpm)?\] \[READ_FREQ:(-?[\d.]+)(?:Hz)?\]`)
	reRefFinal = regexp.MustCompile(`\[REFLECTOR_FINAL:(\d+)\]`)

	// Colon-form detail responses to the TEMP_DUAL and REFLECTOR_STATUS
	// requests. These trail the ACK echo, so they arrive as telemetry.
	reDualTempResp = regexp.MustCompile(`^TEMP_DUAL:S1:(-?[\d.]+),S2:(-?[\d.]+),MAX:(-?[\d.]+),ALARM:[01],S1_CONN:([01]),S2_CONN:([01])`)
	reRefFull      = regexp.MustCompile(`^REFLECTOR_FULL:COUNT:(\d+),VOLTAGE:(-?[\d.]+),STATE:[01],AVG_SPEED:(-?[\d.]+),INST_SPEED:(-?[\d.]+),DETECTIONS:\d+,READS:\d+,READ_FREQ:(-?[\d.]+)`)

	reAlarm    = regexp.MustCompile(`^TEMP_ALARM:(-?[\d.]+)`)
	reSafe     = regexp.MustCompile(`^TEMP_SAFE:(-?[\d.]+)`)
	reWarnSens = regexp.MustCompile(`^WARNING:Sensor(\d)_disconnected`)

	// Single-temperature tails appended to ACK/ARMED/PONG style lines.
	reTagTemp1 = regexp.MustCompile(`\[TEMP1:(-?[\d.]+)\]`)
	reTagTemp2 = regexp.MustCompile(`\[TEMP2:(-?[\d.]+)\]`)
	reTagMax   = regexp.MustCompile(`\[MAX:(-?[\d.]+)\]`)
	reTagRefl  = regexp.MustCompile(`\[REFLECTOR:(\d+)\]`)

	reTagS1Conn  = regexp.MustCompile(`\[S1_CONN:([01])\]`)
	reTagS2Conn  = regexp.MustCompile(`\[S2_CONN:([01])\]`)
	reTagTempReq = regexp.MustCompile(`\[TEMP_REQ:([01])\]`)
)

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseU(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

// Classify maps one complete line to zero or more events. A line nothing
// recognizes comes back as a single Unclassified event so callers can log
// it at debug level.
func Classify(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := reHBDual.FindStringSubmatch(line); m != nil {
		return []Event{
			DualTemperature{Temp1: parseF(m[1]), Temp2: parseF(m[2]), TempMax: parseF(m[3])},
			ReflectorReading{Count: parseU(m[4]), InstSpeed: parseF(m[5]), AvgSpeed: parseF(m[5]), HasSpeeds: true},
		}
	}

	if m := reDualTemp.FindStringSubmatch(line); m != nil {
		ev := DualTemperature{Temp1: parseF(m[1]), Temp2: parseF(m[2]), TempMax: parseF(m[3])}
		// Extended form carries explicit connectivity and mode flags.
		if m := reTagS1Conn.FindStringSubmatch(line); m != nil {
			b := m[1] == "1"
			ev.Sensor1Connected = &b
		}
		if m := reTagS2Conn.FindStringSubmatch(line); m != nil {
			b := m[1] == "1"
			ev.Sensor2Connected = &b
		}
		if m := reTagTempReq.FindStringSubmatch(line); m != nil {
			b := m[1] == "1"
			ev.TempRequired = &b
		}
		return []Event{ev}
	}

	if m := reDualTempResp.FindStringSubmatch(line); m != nil {
		s1 := m[4] == "1"
		s2 := m[5] == "1"
		return []Event{DualTemperature{
			Temp1:            parseF(m[1]),
			Temp2:            parseF(m[2]),
			TempMax:          parseF(m[3]),
			Sensor1Connected: &s1,
			Sensor2Connected: &s2,
		}}
	}

	if m := reRefFull.FindStringSubmatch(line); m != nil {
		return []Event{ReflectorReading{
			Count:      parseU(m[1]),
			Voltage:    parseF(m[2]),
			AvgSpeed:   parseF(m[3]),
			InstSpeed:  parseF(m[4]),
			HasVoltage: true,
			HasSpeeds:  true,
		}}
	}

	if m := reRefStat.FindStringSubmatch(line); m != nil {
		return []Event{ReflectorReading{
			Count:      parseU(m[1]),
			Voltage:    parseF(m[2]),
			AvgSpeed:   parseF(m[4]),
			InstSpeed:  parseF(m[5]),
			HasVoltage: true,
			HasSpeeds:  true,
		}}
	}

	if m := reRefDet.FindStringSubmatch(line); m != nil {
		ev := ReflectorReading{Count: parseU(m[1])}
		if m[2] != "" {
			ev.Voltage = parseF(m[2])
			ev.HasVoltage = true
		}
		if m[3] != "" {
			ev.InstSpeed = parseF(m[3])
			ev.AvgSpeed = parseF(m[3])
			ev.HasSpeeds = true
		}
		return []Event{ev}
	}

	if strings.HasPrefix(line, "HEARTBEAT:") {
		if hb, ok := parseHeartbeat(line); ok {
			return []Event{hb}
		}
		return []Event{Unclassified{Raw: line}}
	}

	if m := reAlarm.FindStringSubmatch(line); m != nil {
		return []Event{AlarmRaised{Temp: parseF(m[1])}}
	}
	if m := reSafe.FindStringSubmatch(line); m != nil {
		return []Event{AlarmCleared{Temp: parseF(m[1])}}
	}

	if m := reWarnSens.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return []Event{SensorConnectivityChanged{Sensor: n, Connected: false}}
	}

	if strings.HasPrefix(line, "EMERGENCY_STOP") {
		ev := EmergencyStop{Reason: line}
		if m := reRefFinal.FindStringSubmatch(line); m != nil {
			n := parseU(m[1])
			ev.FinalReflectorCount = &n
		}
		return []Event{ev}
	}

	// Command acknowledgements often carry piggybacked readings; strip
	// them into a SingleTemperature event so no reading is dropped while
	// the raw line still reaches the dispatcher for completion matching.
	if ev, ok := extractTaggedReadings(line); ok {
		return []Event{ev}
	}

	return []Event{Unclassified{Raw: line}}
}

// parseHeartbeat decodes the compact comma-separated system summary:
// HEARTBEAT:uptime,armed,brake,relay,maxTemp,alarm,activeMotors
func parseHeartbeat(line string) (Heartbeat, bool) {
	body := strings.TrimPrefix(line, "HEARTBEAT:")
	parts := strings.Split(body, ",")
	if len(parts) < 7 {
		return Heartbeat{}, false
	}
	return Heartbeat{
		UptimeSeconds:    parseU(parts[0]),
		Armed:            parts[1] == "1",
		BrakeActive:      parts[2] == "1",
		RelayBrakeActive: parts[3] == "1",
		MaxTemp:          parseF(parts[4]),
		AlarmActive:      parts[5] == "1",
		ActiveMotors:     int(parseU(parts[6])),
	}, true
}

// extractTaggedReadings pulls bracketed temperature/reflector fields out of
// an otherwise command-shaped line (ACK:, ARMED, PONG:). Returns false when
// the line carries none.
func extractTaggedReadings(line string) (SingleTemperature, bool) {
	var ev SingleTemperature
	found := false
	if m := reTagTemp1.FindStringSubmatch(line); m != nil {
		f := parseF(m[1])
		ev.Temp1 = &f
		found = true
	}
	if m := reTagTemp2.FindStringSubmatch(line); m != nil {
		f := parseF(m[1])
		ev.Temp2 = &f
		found = true
	}
	if m := reTagMax.FindStringSubmatch(line); m != nil {
		f := parseF(m[1])
		ev.TempMax = &f
		found = true
	}
	if m := reTagRefl.FindStringSubmatch(line); m != nil {
		n := parseU(m[1])
		ev.Reflector = &n
		found = true
	}
	if !found {
		return SingleTemperature{}, false
	}
	ev.SourceLine = line
	return ev, true
}
