// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 SpectraLoop Contributors

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

var sendCmd = &cobra.Command{
	Use:   "send COMMAND",
	Short: "Send one command and print the response",
	Long: `Opens the controller link, sends a single command synchronously, prints
the completion line, and exits. The exit code reflects the outcome.

Examples:
  spectralink send PING
  spectralink send STATUS
  spectralink send "MOTOR:1:START:50"`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := spectralink.NewEngine(cfg, log)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close()

	line, err := engine.SendSync(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	fmt.Println(line)
	return nil
}
