// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import "errors"

// Sentinel errors returned by the link engine. Callers match them with
// errors.Is; the HTTP layer maps ErrLinkDown and ErrTimeout to 503.
var (
	// ErrLinkDown indicates no open serial connection.
	ErrLinkDown = errors.New("link down")

	// ErrTimeout indicates no matching response arrived within the deadline.
	ErrTimeout = errors.New("command timeout")

	// ErrQueueFull indicates an async enqueue was rejected.
	ErrQueueFull = errors.New("command queue full")

	// ErrReconnectExhausted indicates the reconnect attempt budget is spent.
	// A manual Reconnect resets the budget.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrNoPortFound indicates port auto-discovery found no candidate device.
	ErrNoPortFound = errors.New("no controller port found")
)
