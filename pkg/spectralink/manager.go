// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// reconnectDelay spaces automatic redial attempts. Variable for tests.
var reconnectDelay = 2 * time.Second

// session bundles the per-connection moving parts. A reconnect tears the
// whole session down and builds a fresh one; the store survives across
// sessions.
type session struct {
	link       Link
	classifier *Classifier
	dispatcher *Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
}

// Engine is the top-level facade over the link: it owns connection
// lifecycle, exposes command dispatch, and keeps the shared state fresh.
type Engine struct {
	cfg Config
	log *slog.Logger

	store   *Store
	monitor *Monitor

	mu           sync.Mutex
	sess         *session
	portName     string
	attempts     int
	reconnecting bool
	closed       bool

	onEvent func(Event)
	onLine  func(string)
}

// NewEngine builds an engine. Call Start to dial the controller.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	e := &Engine{
		cfg:   cfg,
		log:   log.With("component", "engine"),
		store: NewStore(log, cfg.Safety.SanityDeltaC),
	}
	e.monitor = NewMonitor(e.store, e, &e.cfg, log)
	return e
}

// Store exposes the shared state for read-side consumers.
func (e *Engine) Store() *Store { return e.store }

// OnEvent registers a decoded-event observer applied to every session.
// Call before Start.
func (e *Engine) OnEvent(fn func(Event)) { e.onEvent = fn }

// OnLine registers a raw-line observer applied to every session.
// Call before Start.
func (e *Engine) OnLine(fn func(string)) { e.onLine = fn }

// Start launches the health monitor and dials the controller. A dial error
// leaves the engine offline but alive: Reconnect can bring the link up
// later. The engine runs until ctx is cancelled or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	go e.monitor.Run(ctx)
	go func() {
		<-ctx.Done()
		e.Close()
	}()
	return e.dial(ctx)
}

// dial opens a fresh session on the configured (or discovered) port.
func (e *Engine) dial(ctx context.Context) error {
	port := e.cfg.Link.Port
	if port == "" {
		var err error
		port, err = DiscoverPort()
		if err != nil {
			return fmt.Errorf("discover controller port: %w", err)
		}
		e.log.Info("auto-discovered controller port", "port", port)
	}

	link, err := openLink(port, e.cfg.Link.Baud, e.cfg.Link.PollInterval())
	if err != nil && e.cfg.Link.Port != "" {
		// The configured device can vanish and re-enumerate under a new
		// name after an unplug; fall back to discovery once.
		alt, derr := DiscoverPort()
		if derr == nil && alt != port {
			e.log.Warn("configured port unavailable, trying discovered port",
				"configured", port, "discovered", alt, "err", err)
			port = alt
			link, err = openLink(port, e.cfg.Link.Baud, e.cfg.Link.PollInterval())
		}
	}
	if err != nil {
		return err
	}

	// Give the controller its reset-on-open settle time, then drop boot
	// chatter before the handshake.
	select {
	case <-time.After(e.cfg.Link.SettleDelay()):
	case <-ctx.Done():
		link.Close()
		return ctx.Err()
	}
	if err := link.Flush(); err != nil {
		link.Close()
		return fmt.Errorf("flush %s: %w", port, err)
	}

	classifier := NewClassifier(link, e.store, e.log)
	if e.cfg.Link.ResponseSizeLimit > 0 {
		classifier.maxLine = e.cfg.Link.ResponseSizeLimit
	}
	if e.onLine != nil {
		classifier.OnLine(e.onLine)
	}
	if e.onEvent != nil {
		classifier.OnEvent(e.onEvent)
	}
	dispatcher := NewDispatcher(link, classifier, e.store, &e.cfg, e.log)

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		link:       link,
		classifier: classifier,
		dispatcher: dispatcher,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	// A write failure means the link is as dead as a read failure; both
	// funnel into the same teardown-and-redial path.
	dispatcher.onLinkError = func() { e.onSessionLost(s) }

	go dispatcher.Run(sctx)
	go func() {
		err := classifier.Run(sctx)
		close(s.done)
		if err != nil {
			e.onSessionLost(s)
		}
	}()

	// Two probe attempts: the controller occasionally eats the first
	// line while its serial buffer settles after a reset.
	var handshakeErr error
	for attempt := 0; attempt < 2; attempt++ {
		if _, handshakeErr = dispatcher.SendSync(ctx, CmdPing); handshakeErr == nil {
			break
		}
	}
	if handshakeErr != nil {
		cancel()
		link.Close()
		return fmt.Errorf("handshake with %s: %w", port, handshakeErr)
	}

	e.mu.Lock()
	e.sess = s
	e.portName = port
	e.mu.Unlock()
	e.store.SetConnected(true)
	e.log.Info("controller link established", "port", port, "baud", e.cfg.Link.Baud)

	// Prime the state with a full status and temperature report.
	dispatcher.SendAsync(CmdStatus)
	dispatcher.SendAsync(CmdTempDual)
	return nil
}

// onSessionLost runs on the session's read goroutine after a link failure.
func (e *Engine) onSessionLost(s *session) {
	e.mu.Lock()
	if e.closed || e.sess != s || e.reconnecting {
		e.mu.Unlock()
		return
	}
	e.reconnecting = true
	e.sess = nil
	e.mu.Unlock()

	s.cancel()
	s.link.Close()
	e.store.SetConnected(false)
	e.log.Warn("controller link lost, reconnecting")
	go e.reconnectLoop()
}

// reconnectLoop redials with bounded attempts. A successful dial resets
// the budget; exhaustion leaves the engine disconnected until a manual
// reconnect.
func (e *Engine) reconnectLoop() {
	defer func() {
		e.mu.Lock()
		e.reconnecting = false
		e.mu.Unlock()
	}()

	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		e.attempts++
		attempt := e.attempts
		e.mu.Unlock()
		e.store.SetReconnectAttempts(attempt)

		if attempt > e.cfg.Link.MaxReconnects {
			e.store.NoteError()
			e.log.Error("reconnect budget exhausted, staying offline",
				"attempts", attempt-1, "err", ErrReconnectExhausted)
			return
		}

		time.Sleep(reconnectDelay)
		e.log.Info("reconnect attempt", "attempt", attempt, "max", e.cfg.Link.MaxReconnects)

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Link.CommandTimeout()+e.cfg.Link.SettleDelay()+5*time.Second)
		err := e.dial(ctx)
		cancel()
		if err == nil {
			e.mu.Lock()
			e.attempts = 0
			e.mu.Unlock()
			e.store.SetReconnectAttempts(0)
			return
		}
		e.log.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
	}
}

// Reconnect closes any current session and dials again, resetting the
// automatic-reconnect budget. Used by the manual reconnect operation.
func (e *Engine) Reconnect(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("engine closed")
	}
	if e.reconnecting {
		e.mu.Unlock()
		return errors.New("reconnect already in progress")
	}
	s := e.sess
	e.sess = nil
	e.attempts = 0
	e.mu.Unlock()

	if s != nil {
		s.cancel()
		s.link.Close()
		<-s.done
	}
	e.store.SetConnected(false)
	e.store.SetReconnectAttempts(0)
	return e.dial(ctx)
}

// Close tears down the current session. The engine cannot be restarted.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	s := e.sess
	e.sess = nil
	e.mu.Unlock()

	if s != nil {
		s.cancel()
		s.link.Close()
		<-s.done
	}
	e.store.SetConnected(false)
	return nil
}

// IsConnected reports whether a live session exists.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil
}

// Port returns the device path of the current or last session.
func (e *Engine) Port() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portName
}

func (e *Engine) dispatcher() (*Dispatcher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, ErrLinkDown
	}
	return e.sess.dispatcher, nil
}

// SendSync writes a command and waits for its completion line.
func (e *Engine) SendSync(ctx context.Context, cmd string) (string, error) {
	d, err := e.dispatcher()
	if err != nil {
		return "", err
	}
	return d.SendSync(ctx, cmd)
}

// SendAsync queues a command for background delivery.
func (e *Engine) SendAsync(cmd string) error {
	d, err := e.dispatcher()
	if err != nil {
		return err
	}
	return d.SendAsync(cmd)
}

// QueueDepth reports the async backlog of the current session.
func (e *Engine) QueueDepth() int {
	d, err := e.dispatcher()
	if err != nil {
		return 0
	}
	return d.QueueDepth()
}

// Snapshot returns a consistent copy of the shared state.
func (e *Engine) Snapshot() StateView { return e.store.Snapshot() }

// TempHistory returns the downsampled temperature buffer.
func (e *Engine) TempHistory() []TempSample { return e.store.TempHistory() }

// SpeedHistory returns the downsampled reflector speed buffer.
func (e *Engine) SpeedHistory() []SpeedSample { return e.store.SpeedHistory() }
