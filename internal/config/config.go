package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig sizes the ingest queue and tunes the analysis loop.
type PipelineConfig struct {
	QueueSize       int    `yaml:"queue_size"`
	PollInterval    string `yaml:"poll_interval"`
	DrainTimeout    string `yaml:"drain_timeout"`
	FlowIdleTimeout string `yaml:"flow_idle_timeout"`
	SweepEvery      int    `yaml:"sweep_every"`
	StatsInterval   string `yaml:"stats_interval"`
}

// FeaturesConfig tunes the per-source spread sketch behind the dst_spread
// feature. An empty window disables it.
type FeaturesConfig struct {
	SpreadWindow string `yaml:"spread_window"`
	SpreadWidth  int    `yaml:"spread_width"`
	SpreadDepth  int    `yaml:"spread_depth"`
	SpreadSeed   uint64 `yaml:"spread_seed"`
}

// CaptureConfig selects where packets come from.
type CaptureConfig struct {
	Mode        string `yaml:"mode"` // live, file or nats
	Interface   string `yaml:"interface"`
	File        string `yaml:"file"`
	BPFFilter   string `yaml:"bpf_filter"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	// Lossless makes file replay wait for queue space instead of dropping.
	Lossless bool `yaml:"lossless"`
}

// ProbeConfig holds the NATS settings shared by the probe and the engine.
type ProbeConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// AnomalyConfig controls the isolation forest.
type AnomalyConfig struct {
	Enabled bool `yaml:"enabled"`
	// Threshold lies in [-1, 0). Zero selects the default of -0.5.
	Threshold     float64 `yaml:"threshold"`
	Trees         int     `yaml:"trees"`
	SampleSize    int     `yaml:"sample_size"`
	Seed          uint64  `yaml:"seed"`
	BaselinePcap  string  `yaml:"baseline_pcap"`
	ModelPath     string  `yaml:"model_path"`
	SaveModelPath string  `yaml:"save_model_path"`
}

// DetectionConfig holds the rule file and the anomaly model settings.
type DetectionConfig struct {
	RulesFile string        `yaml:"rules_file"`
	Anomaly   AnomalyConfig `yaml:"anomaly"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig holds a lib/pq connection string.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the Redis publish settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Channel   string `yaml:"channel"`
	RecentKey string `yaml:"recent_key"`
	RecentMax int64  `yaml:"recent_max"`
}

// NATSSinkConfig holds the NATS alert publish settings.
type NATSSinkConfig struct {
	URL      string `yaml:"url"`
	Subject  string `yaml:"subject"`
	Encoding string `yaml:"encoding"` // json or protobuf
}

// HTTPSinkConfig points at the alert API.
type HTTPSinkConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// DigestConfig controls periodic email summaries of alerts.
type DigestConfig struct {
	Interval  string `yaml:"interval"`
	MaxAlerts int    `yaml:"max_alerts"`
	UseAI     bool   `yaml:"use_ai"`
}

// SinkDef defines a single alert destination.
type SinkDef struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Enabled     bool   `yaml:"enabled"`
	MinSeverity string `yaml:"min_severity"`
	BufferSize  int    `yaml:"buffer_size"`

	HTTP       HTTPSinkConfig   `yaml:"http"`
	NATS       NATSSinkConfig   `yaml:"nats"`
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Digest     DigestConfig     `yaml:"digest"`
}

// APIConfig holds the alert API settings.
type APIConfig struct {
	ListenAddr     string           `yaml:"listen_addr"`
	GRPCListenAddr string           `yaml:"grpc_listen_addr"`
	StorePath      string           `yaml:"store_path"`
	MaxList        int              `yaml:"max_list"`
	ClickHouse     ClickHouseConfig `yaml:"clickhouse"`
}

// MetricsConfig holds the Prometheus endpoint of the engine.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// EvidenceConfig controls the pcap recorder for alerting packets.
type EvidenceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	BufferSize int    `yaml:"buffer_size"`
}

// SnapshotConfig controls flow table snapshots.
type SnapshotConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RootPath string `yaml:"root_path"`
	Interval string `yaml:"interval"`
}

// SMTPConfig holds the configuration for sending emails.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AIConfig holds the OpenAI-compatible endpoint used for digest analysis.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Features  FeaturesConfig  `yaml:"features"`
	Capture   CaptureConfig   `yaml:"capture"`
	Probe     ProbeConfig     `yaml:"probe"`
	Detection DetectionConfig `yaml:"detection"`
	Sinks     []SinkDef       `yaml:"sinks"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	AI        AIConfig        `yaml:"ai"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates durations.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	p := &c.Pipeline
	if p.QueueSize <= 0 {
		p.QueueSize = 1000
	}
	if p.PollInterval == "" {
		p.PollInterval = "100ms"
	}
	if p.DrainTimeout == "" {
		p.DrainTimeout = "5s"
	}
	if p.FlowIdleTimeout == "" {
		p.FlowIdleTimeout = "5m"
	}
	if p.SweepEvery <= 0 {
		p.SweepEvery = 10000
	}
	if p.StatsInterval == "" {
		p.StatsInterval = "30s"
	}

	if c.Features.SpreadWidth <= 0 {
		c.Features.SpreadWidth = 1024
	}
	if c.Features.SpreadDepth <= 0 {
		c.Features.SpreadDepth = 2
	}

	if c.Capture.Mode == "" {
		c.Capture.Mode = "live"
	}
	if c.Capture.Interface == "" {
		c.Capture.Interface = "eth0"
	}
	if c.Capture.BPFFilter == "" {
		c.Capture.BPFFilter = "ip and tcp"
	}
	if c.Capture.SnapshotLen <= 0 {
		c.Capture.SnapshotLen = 1600
	}

	if c.Probe.NATSURL == "" {
		c.Probe.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.Probe.Subject == "" {
		c.Probe.Subject = "guard.packets.raw"
	}

	if c.Detection.RulesFile == "" {
		c.Detection.RulesFile = "configs/rules.json"
	}
	if c.Detection.Anomaly.Threshold == 0 {
		c.Detection.Anomaly.Threshold = -0.5
	}

	for i := range c.Sinks {
		s := &c.Sinks[i]
		if s.Name == "" {
			s.Name = s.Type
		}
		if s.MinSeverity == "" {
			s.MinSeverity = "low"
		}
		if s.BufferSize <= 0 {
			s.BufferSize = 1000
		}
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":5000"
	}
	if c.API.StorePath == "" {
		c.API.StorePath = "data/alerts.db"
	}
	if c.API.MaxList <= 0 {
		c.API.MaxList = 1000
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9102"
	}
	if c.Evidence.Path == "" {
		c.Evidence.Path = "data/evidence"
	}
	if c.Evidence.BufferSize <= 0 {
		c.Evidence.BufferSize = 10000
	}
	if c.Snapshot.RootPath == "" {
		c.Snapshot.RootPath = "data/snapshots"
	}
	if c.AI.Timeout == "" {
		c.AI.Timeout = "60s"
	}
}

func (c *Config) validate() error {
	durations := map[string]string{
		"pipeline.poll_interval":     c.Pipeline.PollInterval,
		"pipeline.drain_timeout":     c.Pipeline.DrainTimeout,
		"pipeline.flow_idle_timeout": c.Pipeline.FlowIdleTimeout,
		"pipeline.stats_interval":    c.Pipeline.StatsInterval,
		"ai.timeout":                 c.AI.Timeout,
	}
	if c.Features.SpreadWindow != "" {
		durations["features.spread_window"] = c.Features.SpreadWindow
	}
	if c.Snapshot.Interval != "" {
		durations["snapshot.interval"] = c.Snapshot.Interval
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, value, err)
		}
	}
	for field, value := range map[string]string{
		"pipeline.poll_interval":  c.Pipeline.PollInterval,
		"pipeline.stats_interval": c.Pipeline.StatsInterval,
	} {
		if Duration(value) <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", field, value)
		}
	}
	if t := c.Detection.Anomaly.Threshold; t < -1 || t >= 0 {
		return fmt.Errorf("invalid detection.anomaly.threshold %v: must be in [-1, 0)", t)
	}
	switch c.Capture.Mode {
	case "live", "file", "nats":
	default:
		return fmt.Errorf("invalid capture.mode %q", c.Capture.Mode)
	}
	return nil
}

// Duration parses a duration that validate has already checked. Empty
// strings yield zero.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
