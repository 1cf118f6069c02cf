// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors
//
// Spectralink - Device Link Engine
//
// Bridges an HTTP control plane to the pod's microcontroller over a serial
// link: command serialization, telemetry demultiplexing, per-sensor
// liveness inference, and the fault-tolerant temperature bypass.

package main

import (
	"os"

	"github.com/spectraloop/spectralink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
