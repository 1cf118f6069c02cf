// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the link engine and the HTTP layer. All
// durations are expressed in milliseconds in the YAML file to keep the
// format friendly to non-Go tooling.
type Config struct {
	Link   LinkConfig   `yaml:"link"`
	Safety SafetyConfig `yaml:"safety"`
	Server ServerConfig `yaml:"server"`
}

// LinkConfig configures the serial connection and command dispatch.
type LinkConfig struct {
	// Port is the serial device path. Empty means auto-discover.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	CommandTimeoutMs  int `yaml:"command_timeout_ms"`
	AsyncTimeoutMs    int `yaml:"async_timeout_ms"`
	MinCommandGapMs   int `yaml:"min_command_gap_ms"`
	PollIntervalMs    int `yaml:"poll_interval_ms"`
	SettleDelayMs     int `yaml:"settle_delay_ms"`
	QueueCapacity     int `yaml:"queue_capacity"`
	MaxRetries        int `yaml:"max_retries"`
	MaxReconnects     int `yaml:"max_reconnects"`
	ResponseSizeLimit int `yaml:"response_size_limit"`
}

// SafetyConfig configures temperature thresholds and liveness timing.
type SafetyConfig struct {
	AlarmTempC   float64 `yaml:"alarm_temp_c"`
	SafeTempC    float64 `yaml:"safe_temp_c"`
	WarningTempC float64 `yaml:"warning_temp_c"`

	// SanityDeltaC rejects a reading this far from the previous accepted
	// value for the same sensor.
	SanityDeltaC float64 `yaml:"sanity_delta_c"`

	// DivergenceC triggers a cross-sensor consistency warning.
	DivergenceC float64 `yaml:"divergence_c"`

	SensorTimeoutMs    int `yaml:"sensor_timeout_ms"`
	RecoveryIntervalMs int `yaml:"recovery_interval_ms"`
	HealthIntervalMs   int `yaml:"health_interval_ms"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Listen   string `yaml:"listen"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DefaultConfig returns the conservative defaults used when no config file
// is given. Threshold values follow the controller firmware.
func DefaultConfig() Config {
	return Config{
		Link: LinkConfig{
			Baud:              115200,
			CommandTimeoutMs:  3000,
			AsyncTimeoutMs:    2000,
			MinCommandGapMs:   30,
			PollIntervalMs:    20,
			SettleDelayMs:     2000,
			QueueCapacity:     200,
			MaxRetries:        2,
			MaxReconnects:     5,
			ResponseSizeLimit: 512,
		},
		Safety: SafetyConfig{
			AlarmTempC:         55.0,
			SafeTempC:          50.0,
			WarningTempC:       45.0,
			SanityDeltaC:       50.0,
			DivergenceC:        5.0,
			SensorTimeoutMs:    10000,
			RecoveryIntervalMs: 10000,
			HealthIntervalMs:   5000,
		},
		Server: ServerConfig{
			Listen: "0.0.0.0:5001",
		},
	}
}

// LoadConfig reads a YAML config file and overlays it on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration correctness. It does not mutate the config.
func (c Config) Validate() error {
	if c.Link.Baud <= 0 {
		return fmt.Errorf("link.baud must be positive, got %d", c.Link.Baud)
	}
	if c.Link.QueueCapacity <= 0 {
		return fmt.Errorf("link.queue_capacity must be positive, got %d", c.Link.QueueCapacity)
	}
	if c.Link.MaxRetries < 0 {
		return fmt.Errorf("link.max_retries must be non-negative, got %d", c.Link.MaxRetries)
	}
	if c.Link.MaxReconnects <= 0 {
		return fmt.Errorf("link.max_reconnects must be positive, got %d", c.Link.MaxReconnects)
	}
	if c.Safety.SafeTempC >= c.Safety.AlarmTempC {
		return fmt.Errorf("safety.safe_temp_c (%.1f) must be below alarm_temp_c (%.1f)",
			c.Safety.SafeTempC, c.Safety.AlarmTempC)
	}
	if c.Safety.SensorTimeoutMs <= 0 {
		return fmt.Errorf("safety.sensor_timeout_ms must be positive, got %d", c.Safety.SensorTimeoutMs)
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	return nil
}

// Duration accessors keep the millisecond fields out of call sites.

func (c LinkConfig) CommandTimeout() time.Duration { return msDur(c.CommandTimeoutMs) }
func (c LinkConfig) AsyncTimeout() time.Duration   { return msDur(c.AsyncTimeoutMs) }
func (c LinkConfig) MinCommandGap() time.Duration  { return msDur(c.MinCommandGapMs) }
func (c LinkConfig) PollInterval() time.Duration   { return msDur(c.PollIntervalMs) }
func (c LinkConfig) SettleDelay() time.Duration    { return msDur(c.SettleDelayMs) }

func (c SafetyConfig) SensorTimeout() time.Duration    { return msDur(c.SensorTimeoutMs) }
func (c SafetyConfig) RecoveryInterval() time.Duration { return msDur(c.RecoveryIntervalMs) }
func (c SafetyConfig) HealthInterval() time.Duration   { return msDur(c.HealthIntervalMs) }

func msDur(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
