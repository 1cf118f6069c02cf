// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 SpectraLoop Contributors

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and mark controller candidates",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := spectralink.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		marker := " "
		if p.Candidate {
			marker = "*"
		}
		desc := p.Product
		if desc == "" && p.IsUSB {
			desc = fmt.Sprintf("USB %s:%s", p.VID, p.PID)
		}
		fmt.Printf("%s %-24s %s\n", marker, p.Name, desc)
	}
	fmt.Println("\n* = likely controller port")
	return nil
}
