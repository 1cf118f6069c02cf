// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Expectation is a registered claim on the next line matching a predicate.
// At most one expectation is outstanding at a time; the dispatcher enforces
// this by holding the write turn for the full request/response exchange.
type Expectation struct {
	match func(line string) bool
	c     chan string

	owner *Classifier
}

// C delivers the first matching line. The channel is buffered so the read
// loop never blocks on a slow waiter.
func (e *Expectation) C() <-chan string { return e.c }

// Cancel withdraws the expectation. Lines arriving after cancellation are
// treated as plain telemetry.
func (e *Expectation) Cancel() {
	e.owner.mu.Lock()
	if e.owner.expect == e {
		e.owner.expect = nil
	}
	e.owner.mu.Unlock()
}

// Classifier owns the link's read side. It reassembles newline-framed
// lines, offers each to the outstanding expectation, and always applies
// the line's telemetry to the store regardless of whether a command
// claimed it.
type Classifier struct {
	link  Link
	store *Store
	log   *slog.Logger

	mu     sync.Mutex
	expect *Expectation

	// maxLine bounds the partial-line buffer. Input that never produces a
	// newline past this size is noise (wrong baud rate, binary stream) and
	// gets dropped rather than accumulated.
	maxLine int

	// onLine and onEvent fan lines and decoded events out to observers
	// (websocket broadcast, capture files). Both run on the read
	// goroutine and must not block.
	onLine  func(string)
	onEvent func(Event)
}

// NewClassifier builds a classifier over an open link.
func NewClassifier(link Link, store *Store, log *slog.Logger) *Classifier {
	return &Classifier{
		link:    link,
		store:   store,
		log:     log.With("component", "classifier"),
		maxLine: 512,
	}
}

// OnLine registers a raw-line observer. Call before Run.
func (c *Classifier) OnLine(fn func(string)) { c.onLine = fn }

// OnEvent registers a decoded-event observer. Call before Run.
func (c *Classifier) OnEvent(fn func(Event)) { c.onEvent = fn }

// Expect registers a response expectation. Returns an error when one is
// already outstanding, which indicates a dispatcher serialization bug.
func (c *Classifier) Expect(match func(line string) bool) (*Expectation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expect != nil {
		return nil, errors.New("response expectation already outstanding")
	}
	e := &Expectation{match: match, c: make(chan string, 1), owner: c}
	c.expect = e
	return e, nil
}

// Run reads the link until ctx is cancelled or the link fails. Returns nil
// on cancellation, the read error otherwise.
func (c *Classifier) Run(ctx context.Context) error {
	buf := make([]byte, 1024)
	var partial strings.Builder

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := c.link.Read(buf)
		if n > 0 {
			partial.Write(buf[:n])
			if strings.Contains(partial.String(), "\n") {
				rest := c.consumeLines(partial.String())
				partial.Reset()
				partial.WriteString(rest)
			} else if partial.Len() > c.maxLine {
				c.store.NoteError()
				c.log.Warn("dropping oversized unterminated input", "bytes", partial.Len())
				partial.Reset()
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.store.NoteError()
			c.log.Error("link read failed", "err", err)
			return err
		}
	}
}

// consumeLines processes every complete line in data and returns the
// trailing partial line.
func (c *Classifier) consumeLines(data string) string {
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			return data
		}
		line := strings.TrimRight(data[:idx], "\r")
		data = data[idx+1:]
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.handleLine(line)
	}
}

func (c *Classifier) handleLine(line string) {
	if c.onLine != nil {
		c.onLine(line)
	}

	c.mu.Lock()
	if e := c.expect; e != nil && e.match(line) {
		c.expect = nil
		e.c <- line
	}
	c.mu.Unlock()

	// Telemetry applies even when a command claimed the line: piggybacked
	// readings on acknowledgements must not be lost.
	for _, ev := range Classify(line) {
		c.apply(ev)
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

func (c *Classifier) apply(ev Event) {
	switch e := ev.(type) {
	case DualTemperature:
		c.applyDualTemperature(e)
	case SingleTemperature:
		if e.Temp1 != nil && *e.Temp1 > disconnectedReading {
			c.store.RecordTemperature(1, *e.Temp1)
		}
		if e.Temp2 != nil && *e.Temp2 > disconnectedReading {
			c.store.RecordTemperature(2, *e.Temp2)
		}
		if e.Reflector != nil {
			c.store.RecordReflector(*e.Reflector, 0, 0, 0, false, false)
		}
	case ReflectorReading:
		c.store.RecordReflector(e.Count, e.Voltage, e.InstSpeed, e.AvgSpeed, e.HasVoltage, e.HasSpeeds)
	case Heartbeat:
		c.store.ApplyHeartbeat(e)
	case AlarmRaised:
		c.store.SetAlarm(true, e.Temp)
	case AlarmCleared:
		c.store.SetAlarm(false, e.Temp)
	case SensorConnectivityChanged:
		c.store.SetSensorConnectivity(e.Sensor, e.Connected)
	case EmergencyStop:
		c.store.RecordEmergencyStop(e.FinalReflectorCount)
		c.log.Warn("controller reported emergency stop", "line", e.Reason)
	case Unclassified:
		c.log.Debug("unrecognized line", "line", e.Raw)
	}
}

// applyDualTemperature folds a two-sensor report in. A sensor whose value
// sits at the disconnected sentinel is marked offline rather than recorded.
func (c *Classifier) applyDualTemperature(e DualTemperature) {
	if e.Sensor1Valid() {
		c.store.RecordTemperature(1, e.Temp1)
	} else {
		c.store.SetSensorConnectivity(1, false)
	}
	if e.Sensor2Valid() {
		c.store.RecordTemperature(2, e.Temp2)
	} else {
		c.store.SetSensorConnectivity(2, false)
	}
	if e.Sensor1Connected != nil {
		c.store.SetSensorConnectivity(1, *e.Sensor1Connected)
	}
	if e.Sensor2Connected != nil {
		c.store.SetSensorConnectivity(2, *e.Sensor2Connected)
	}
}
