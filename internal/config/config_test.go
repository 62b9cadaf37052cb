package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
capture:
  mode: file
  file: capture.pcap
detection:
  rules_file: rules.json
  anomaly:
    enabled: true
    baseline_pcap: normal.pcap
sinks:
  - type: log
  - name: ops-api
    type: http
    min_severity: high
    http:
      url: http://localhost:5000/api/v1/alerts
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Pipeline.QueueSize != 1000 {
		t.Errorf("Expected default queue size 1000, got %d", cfg.Pipeline.QueueSize)
	}
	if Duration(cfg.Pipeline.PollInterval) != 100*time.Millisecond {
		t.Errorf("Unexpected poll interval %q", cfg.Pipeline.PollInterval)
	}
	if cfg.Detection.Anomaly.Threshold != -0.5 {
		t.Errorf("Expected default threshold -0.5, got %v", cfg.Detection.Anomaly.Threshold)
	}
	if len(cfg.Sinks) != 2 {
		t.Fatalf("Expected 2 sinks, got %d", len(cfg.Sinks))
	}
	if cfg.Sinks[0].Name != "log" || cfg.Sinks[0].MinSeverity != "low" {
		t.Errorf("Unexpected defaults for first sink: %+v", cfg.Sinks[0])
	}
	if cfg.Sinks[1].MinSeverity != "high" || cfg.Sinks[1].HTTP.URL == "" {
		t.Errorf("Unexpected second sink: %+v", cfg.Sinks[1])
	}
	if cfg.Capture.Mode != "file" || cfg.Capture.Interface != "eth0" {
		t.Errorf("Unexpected capture config: %+v", cfg.Capture)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	if _, err := Parse([]byte("pipeline:\n  drain_timeout: soon\n")); err == nil {
		t.Error("Expected an error for an invalid duration")
	}
	if _, err := Parse([]byte("capture:\n  mode: carrier-pigeon\n")); err == nil {
		t.Error("Expected an error for an unknown capture mode")
	}
	for _, doc := range []string{
		"pipeline:\n  stats_interval: 0s\n",
		"pipeline:\n  stats_interval: -5s\n",
		"pipeline:\n  poll_interval: 0s\n",
		"detection:\n  anomaly:\n    threshold: 0.2\n",
		"detection:\n  anomaly:\n    threshold: -1.5\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Expected an error for out-of-range value in %q", doc)
		}
	}
	if _, err := Parse([]byte("pipeline: [")); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestShippedConfigIsValid(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Capture.Mode != "live" {
		t.Errorf("Capture.Mode = %q, want live", cfg.Capture.Mode)
	}
	if got := Duration(cfg.Pipeline.DrainTimeout); got != 5*time.Second {
		t.Errorf("DrainTimeout = %v, want 5s", got)
	}
	if cfg.Detection.Anomaly.Seed != 42 || cfg.Detection.Anomaly.Threshold != -0.5 {
		t.Errorf("Anomaly = %+v, want seed 42 and threshold -0.5", cfg.Detection.Anomaly)
	}
	if cfg.Features.SpreadWindow != "60s" || cfg.Features.SpreadWidth != 1024 {
		t.Errorf("Features = %+v, want 60s window over 1024 buckets", cfg.Features)
	}
	if len(cfg.Sinks) != 7 {
		t.Errorf("len(Sinks) = %d, want 7", len(cfg.Sinks))
	}
}
