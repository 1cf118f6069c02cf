// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 SpectraLoop Contributors

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

var recordOutput string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture classified telemetry to a CBOR file",
	Long: `Opens the controller link and appends every classified telemetry event
to a CBOR stream file for offline analysis. Each record carries a
timestamp, the event name, and the decoded payload.`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "telemetry.cbor", "Output file")
	rootCmd.AddCommand(recordCmd)
}

// capturedEvent is one record in the capture stream.
type capturedEvent struct {
	At    time.Time `cbor:"at"`
	Name  string    `cbor:"name"`
	Event any       `cbor:"event"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	f, err := os.OpenFile(recordOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	enc := cbor.NewEncoder(f)
	var encMu sync.Mutex
	var count int

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := spectralink.NewEngine(cfg, log)
	engine.OnEvent(func(ev spectralink.Event) {
		encMu.Lock()
		defer encMu.Unlock()
		rec := capturedEvent{At: time.Now(), Name: ev.EventName(), Event: ev}
		if err := enc.Encode(rec); err != nil {
			log.Error("capture write failed", "err", err)
			return
		}
		count++
	})

	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(os.Stderr, "Recording from %s to %s, press Ctrl+C to stop\n",
		engine.Port(), recordOutput)
	<-ctx.Done()

	encMu.Lock()
	defer encMu.Unlock()
	fmt.Fprintf(os.Stderr, "Captured %d events\n", count)
	return nil
}
