// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 SpectraLoop Contributors

package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spectraloop/spectralink/pkg/api"
	"github.com/spectraloop/spectralink/pkg/spectralink"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane server",
	Long: `Opens the controller link and serves the HTTP control plane.

A controller that is unplugged at startup does not stop the server: the
link stays offline and can be brought up later via POST /api/reconnect.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := spectralink.NewEngine(cfg, log)
	if err := engine.Start(ctx); err != nil {
		if errors.Is(err, spectralink.ErrNoPortFound) || errors.Is(err, spectralink.ErrLinkDown) {
			log.Warn("controller not reachable, serving offline", "err", err)
		} else {
			log.Warn("initial link dial failed, serving offline", "err", err)
		}
	}
	defer engine.Close()

	srv := api.NewServer(engine, &cfg, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
