// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package spectralink

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Link.Baud != 115200 {
		t.Errorf("baud = %d", cfg.Link.Baud)
	}
	if cfg.Link.CommandTimeout() != 3*time.Second {
		t.Errorf("command timeout = %v", cfg.Link.CommandTimeout())
	}
	if cfg.Safety.SensorTimeout() != 10*time.Second {
		t.Errorf("sensor timeout = %v", cfg.Safety.SensorTimeout())
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
link:
  port: /dev/ttyACM3
  baud: 57600
safety:
  alarm_temp_c: 60
server:
  listen: 127.0.0.1:8080
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Link.Port != "/dev/ttyACM3" || cfg.Link.Baud != 57600 {
		t.Errorf("link overrides not applied: %+v", cfg.Link)
	}
	if cfg.Safety.AlarmTempC != 60 {
		t.Errorf("alarm threshold not applied: %v", cfg.Safety.AlarmTempC)
	}
	// Untouched fields keep their defaults.
	if cfg.Link.QueueCapacity != 200 || cfg.Safety.SafeTempC != 50.0 {
		t.Error("defaults lost during overlay")
	}
	if cfg.Server.Listen != "127.0.0.1:8080" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero baud", func(c *Config) { c.Link.Baud = 0 }},
		{"zero queue", func(c *Config) { c.Link.QueueCapacity = 0 }},
		{"negative retries", func(c *Config) { c.Link.MaxRetries = -1 }},
		{"zero reconnects", func(c *Config) { c.Link.MaxReconnects = 0 }},
		{"safe above alarm", func(c *Config) { c.Safety.SafeTempC = 70 }},
		{"zero sensor timeout", func(c *Config) { c.Safety.SensorTimeoutMs = 0 }},
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("missing file should error")
	}
}
