// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 SpectraLoop Contributors

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

var monitorRaw bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print classified controller telemetry",
	Long: `Opens the controller link and prints every classified telemetry event
as it arrives. With --raw, the unparsed lines are printed instead.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorRaw, "raw", false, "Print raw lines instead of classified events")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := spectralink.NewEngine(cfg, log)
	if monitorRaw {
		engine.OnLine(func(line string) {
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), line)
		})
	} else {
		engine.OnEvent(printEvent)
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(os.Stderr, "Monitoring %s, press Ctrl+C to exit\n", engine.Port())
	<-ctx.Done()
	return nil
}

func printEvent(ev spectralink.Event) {
	ts := time.Now().Format("15:04:05.000")
	switch e := ev.(type) {
	case spectralink.DualTemperature:
		fmt.Printf("[%s] TEMP      s1=%.1f°C s2=%.1f°C max=%.1f°C\n", ts, e.Temp1, e.Temp2, e.TempMax)
	case spectralink.SingleTemperature:
		fmt.Printf("[%s] TEMP*     %s\n", ts, e.SourceLine)
	case spectralink.ReflectorReading:
		fmt.Printf("[%s] REFLECTOR count=%d v=%.2fV inst=%.1f avg=%.1f\n",
			ts, e.Count, e.Voltage, e.InstSpeed, e.AvgSpeed)
	case spectralink.Heartbeat:
		fmt.Printf("[%s] HEARTBEAT up=%ds armed=%t brake=%t relay=%t max=%.1f°C alarm=%t motors=%d\n",
			ts, e.UptimeSeconds, e.Armed, e.BrakeActive, e.RelayBrakeActive,
			e.MaxTemp, e.AlarmActive, e.ActiveMotors)
	case spectralink.AlarmRaised:
		fmt.Printf("[%s] ALARM     raised at %.1f°C\n", ts, e.Temp)
	case spectralink.AlarmCleared:
		fmt.Printf("[%s] ALARM     cleared at %.1f°C\n", ts, e.Temp)
	case spectralink.SensorConnectivityChanged:
		fmt.Printf("[%s] SENSOR    %d connected=%t\n", ts, e.Sensor, e.Connected)
	case spectralink.EmergencyStop:
		fmt.Printf("[%s] ESTOP     %s\n", ts, e.Reason)
	case spectralink.Unclassified:
		fmt.Printf("[%s] ???       %s\n", ts, e.Raw)
	}
}
