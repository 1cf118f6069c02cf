// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Link is the byte transport to the controller. Read returns whatever bytes
// are available (possibly zero on a read-timeout tick); line framing happens
// above in the classifier.
type Link interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// Test seams. Production code always goes through these vars so tests can
// substitute an in-memory port without touching real hardware.
var (
	openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
		return serial.Open(name, mode)
	}
	listPorts = func() ([]*enumerator.PortDetails, error) {
		return enumerator.GetDetailedPortsList()
	}
	openLink = OpenLink
)

// serialLink adapts a serial.Port to the Link interface.
type serialLink struct {
	port serial.Port
}

// OpenLink opens the named serial port at the configured baud rate with a
// short read timeout so the classifier's read loop can poll for shutdown.
func OpenLink(name string, baud int, pollInterval time.Duration) (Link, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return &serialLink{port: port}, nil
}

func (l *serialLink) Read(p []byte) (int, error)  { return l.port.Read(p) }
func (l *serialLink) Write(p []byte) (int, error) { return l.port.Write(p) }

// Flush drops buffered input so a fresh session does not replay the
// controller's boot chatter.
func (l *serialLink) Flush() error {
	return l.port.ResetInputBuffer()
}

func (l *serialLink) Close() error { return l.port.Close() }
