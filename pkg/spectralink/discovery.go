// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"strings"
)

// Identifiers that mark a candidate controller port. USB descriptions come
// from the enumerator; device-name fragments cover systems where no
// descriptor metadata is exposed.
var portKeywords = []string{
	"arduino",
	"ch340",
	"ch341",
	"cp210",
	"ft232",
	"usb serial",
	"usb-serial",
}

var portNameFragments = []string{
	"ttyUSB",
	"ttyACM",
	"cu.usbserial",
	"cu.usbmodem",
	"cu.wchusbserial",
}

// PortInfo describes one enumerated serial port.
type PortInfo struct {
	Name      string `json:"name"`
	Product   string `json:"product,omitempty"`
	VID       string `json:"vid,omitempty"`
	PID       string `json:"pid,omitempty"`
	IsUSB     bool   `json:"is_usb"`
	Candidate bool   `json:"candidate"`
	SerialNum string `json:"serial_number,omitempty"`
}

// ListPorts enumerates serial ports, flagging likely controller candidates.
func ListPorts() ([]PortInfo, error) {
	details, err := listPorts()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{
			Name:      d.Name,
			Product:   d.Product,
			VID:       d.VID,
			PID:       d.PID,
			IsUSB:     d.IsUSB,
			SerialNum: d.SerialNumber,
		}
		info.Candidate = isCandidate(d.Name, d.Product)
		out = append(out, info)
	}
	return out, nil
}

// DiscoverPort picks the first candidate port, or falls back to the first
// enumerated port when nothing matches the known identifiers.
func DiscoverPort() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", ErrNoPortFound
	}
	for _, p := range ports {
		if p.Candidate {
			return p.Name, nil
		}
	}
	return ports[0].Name, nil
}

func isCandidate(name, product string) bool {
	lower := strings.ToLower(product)
	for _, kw := range portKeywords {
		if lower != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	for _, frag := range portNameFragments {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}
