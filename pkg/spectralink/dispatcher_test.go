// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedLink records writes and can synchronously inject response lines
// into the classifier, standing in for the controller.
type scriptedLink struct {
	mu         sync.Mutex
	classifier *Classifier
	writes     []string
	respond    func(cmd string) []string
	failWrites bool
}

func (l *scriptedLink) Read(p []byte) (int, error) { return 0, nil }

func (l *scriptedLink) Write(p []byte) (int, error) {
	if l.failWrites {
		return 0, errors.New("port gone")
	}
	cmd := strings.TrimSpace(string(p))
	l.mu.Lock()
	l.writes = append(l.writes, cmd)
	respond := l.respond
	l.mu.Unlock()
	if respond != nil {
		for _, line := range respond(cmd) {
			l.classifier.consumeLines(line + "\n")
		}
	}
	return len(p), nil
}

func (l *scriptedLink) Flush() error { return nil }
func (l *scriptedLink) Close() error { return nil }

func (l *scriptedLink) writeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.writes)
}

func testDispatchConfig() Config {
	cfg := DefaultConfig()
	cfg.Link.CommandTimeoutMs = 200
	cfg.Link.AsyncTimeoutMs = 30
	cfg.Link.MinCommandGapMs = 0
	cfg.Link.QueueCapacity = 4
	cfg.Link.MaxRetries = 2
	return cfg
}

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *scriptedLink, *Store) {
	t.Helper()
	store := NewStore(testLogger(), cfg.Safety.SanityDeltaC)
	link := &scriptedLink{}
	classifier := NewClassifier(link, store, testLogger())
	link.classifier = classifier
	d := NewDispatcher(link, classifier, store, &cfg, testLogger())
	return d, link, store
}

func ackResponder(cmd string) []string {
	return []string{"ACK:" + cmd}
}

func TestDispatcher_SendSync(t *testing.T) {
	d, link, store := newTestDispatcher(t, testDispatchConfig())
	link.respond = ackResponder

	line, err := d.SendSync(context.Background(), CmdStatus)
	if err != nil {
		t.Fatal(err)
	}
	if line != "ACK:STATUS" {
		t.Errorf("response = %q", line)
	}
	v := store.Snapshot()
	if v.Commands != 1 {
		t.Errorf("commands = %d, want 1", v.Commands)
	}
	if v.LastResponse == nil {
		t.Error("response time not recorded")
	}
}

// Concurrent sync sends must serialize: with the write turn held through
// each full exchange, no registration can collide and every call succeeds.
func TestDispatcher_ConcurrentSyncSerializes(t *testing.T) {
	d, link, _ := newTestDispatcher(t, testDispatchConfig())
	link.respond = ackResponder

	const callers = 10
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.SendSync(context.Background(), CmdStatus)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent send failed: %v", err)
		}
	}
	if n := link.writeCount(); n != callers {
		t.Errorf("writes = %d, want %d", n, callers)
	}
}

func TestDispatcher_TimeoutLeavesDispatcherReusable(t *testing.T) {
	d, link, _ := newTestDispatcher(t, testDispatchConfig())

	// No responder: the first call times out.
	_, err := d.SendSync(context.Background(), CmdStatus)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The expectation slot must be free for the very next command.
	link.respond = ackResponder
	if _, err := d.SendSync(context.Background(), CmdStatus); err != nil {
		t.Fatalf("dispatcher stuck after timeout: %v", err)
	}
}

func TestDispatcher_PingMatchesOnlyPong(t *testing.T) {
	d, link, _ := newTestDispatcher(t, testDispatchConfig())
	link.respond = func(cmd string) []string {
		return []string{"ACK:SOMETHING_ELSE", "PONG:uptime=12"}
	}

	line, err := d.SendSync(context.Background(), CmdPing)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "PONG") {
		t.Errorf("PING must complete on PONG, got %q", line)
	}
}

func TestDispatcher_ControllerError(t *testing.T) {
	d, link, _ := newTestDispatcher(t, testDispatchConfig())
	link.respond = func(cmd string) []string {
		return []string{"ERROR:unknown command"}
	}

	if _, err := d.SendSync(context.Background(), "BOGUS"); err == nil {
		t.Fatal("controller ERROR line should surface as an error")
	}
}

func TestDispatcher_WriteFailure(t *testing.T) {
	d, link, _ := newTestDispatcher(t, testDispatchConfig())
	link.failWrites = true

	lost := make(chan struct{}, 1)
	d.onLinkError = func() { lost <- struct{}{} }

	_, err := d.SendSync(context.Background(), CmdStatus)
	if !errors.Is(err, ErrLinkDown) {
		t.Fatalf("expected ErrLinkDown, got %v", err)
	}
	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Error("write failure should notify the session supervisor")
	}
}

func TestDispatcher_AsyncRetryBound(t *testing.T) {
	cfg := testDispatchConfig()
	d, link, _ := newTestDispatcher(t, cfg)
	// No responder: every attempt times out.

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if err := d.SendAsync(CmdStatus); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	want := 1 + cfg.Link.MaxRetries
	for time.Now().Before(deadline) {
		if link.writeCount() >= want {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Allow the final attempt's timeout to elapse, then confirm no extras.
	time.Sleep(3 * cfg.Link.AsyncTimeout())
	if n := link.writeCount(); n != want {
		t.Errorf("attempts = %d, want exactly %d", n, want)
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	cfg := testDispatchConfig()
	d, _, _ := newTestDispatcher(t, cfg)
	// Run loop not started: the queue only fills.

	for i := 0; i < cfg.Link.QueueCapacity; i++ {
		if err := d.SendAsync(CmdStatus); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	if err := d.SendAsync(CmdStatus); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if d.QueueDepth() != cfg.Link.QueueCapacity {
		t.Errorf("queue depth = %d", d.QueueDepth())
	}
}
