// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Dispatcher owns the link's write side. All writes funnel through a single
// mutex held for the full request/response exchange, so the controller
// never sees interleaved commands and at most one response expectation is
// outstanding at a time.
type Dispatcher struct {
	link       Link
	classifier *Classifier
	store      *Store
	log        *slog.Logger

	timeout      time.Duration
	asyncTimeout time.Duration
	minGap       time.Duration
	maxRetries   int

	writeMu   sync.Mutex
	lastWrite time.Time

	queue chan string

	// onLinkError fires once per failed write so the session supervisor
	// can tear down and redial; a read failure reaches it via the
	// classifier instead.
	onLinkError func()
}

// NewDispatcher wires the write side over an open session.
func NewDispatcher(link Link, classifier *Classifier, store *Store, cfg *Config, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		link:         link,
		classifier:   classifier,
		store:        store,
		log:          log.With("component", "dispatcher"),
		timeout:      cfg.Link.CommandTimeout(),
		asyncTimeout: cfg.Link.AsyncTimeout(),
		minGap:       cfg.Link.MinCommandGap(),
		maxRetries:   cfg.Link.MaxRetries,
		queue:        make(chan string, cfg.Link.QueueCapacity),
	}
}

// SendSync writes a command and blocks for its completion line. The write
// turn is held through the whole exchange.
func (d *Dispatcher) SendSync(ctx context.Context, cmd string) (string, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.exchange(ctx, cmd, d.timeout)
}

// SendAsync queues a command for background delivery. Returns ErrQueueFull
// when the bounded queue is saturated; the command is then dropped rather
// than blocking the caller.
func (d *Dispatcher) SendAsync(cmd string) error {
	select {
	case d.queue <- cmd:
		return nil
	default:
		d.store.NoteError()
		d.log.Warn("async queue full, dropping command", "cmd", cmd)
		return ErrQueueFull
	}
}

// QueueDepth reports the number of commands waiting for delivery.
func (d *Dispatcher) QueueDepth() int { return len(d.queue) }

// Run drains the async queue until ctx is cancelled. Each command gets the
// shorter async timeout and a bounded number of retries; a command that
// still fails is dropped with a logged error so the queue keeps moving.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.queue:
			d.deliver(ctx, cmd)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, cmd string) {
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}
		d.writeMu.Lock()
		_, err := d.exchange(ctx, cmd, d.asyncTimeout)
		d.writeMu.Unlock()
		if err == nil {
			return
		}
		d.log.Warn("async command failed", "cmd", cmd, "attempt", attempt+1, "err", err)
	}
	d.store.NoteError()
	d.log.Error("async command abandoned after retries", "cmd", cmd, "attempts", d.maxRetries+1)
}

// exchange performs one write-and-await cycle. Caller holds writeMu.
func (d *Dispatcher) exchange(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	if gap := d.minGap - time.Since(d.lastWrite); gap > 0 {
		time.Sleep(gap)
	}

	exp, err := d.classifier.Expect(completionMatcher(cmd))
	if err != nil {
		return "", fmt.Errorf("register expectation for %q: %w", cmd, err)
	}

	if _, err := d.link.Write([]byte(cmd + "\n")); err != nil {
		exp.Cancel()
		d.store.NoteError()
		if d.onLinkError != nil {
			go d.onLinkError()
		}
		return "", fmt.Errorf("write %q: %w", cmd, ErrLinkDown)
	}
	d.lastWrite = time.Now()
	d.store.NoteCommand()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line := <-exp.C():
		d.store.NoteResponse()
		if strings.HasPrefix(line, "ERROR:") {
			return line, fmt.Errorf("controller rejected %q: %s", cmd, line)
		}
		return line, nil
	case <-timer.C:
		exp.Cancel()
		d.store.NoteError()
		return "", fmt.Errorf("await response to %q: %w", cmd, ErrTimeout)
	case <-ctx.Done():
		exp.Cancel()
		return "", ctx.Err()
	}
}

// completionMatcher builds the predicate that recognizes the response to
// cmd. PING gets an exact PONG match; everything else completes on any of
// the controller's acknowledgement tokens.
func completionMatcher(cmd string) func(string) bool {
	if cmd == CmdPing {
		return func(line string) bool {
			return strings.HasPrefix(line, "PONG")
		}
	}
	return func(line string) bool {
		for _, tok := range completionTokens {
			if strings.Contains(line, tok) {
				return true
			}
		}
		return false
	}
}
