package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Graph     GraphConfig     `yaml:"graph"`
	Search    SearchConfig    `yaml:"search"`
	Queue     QueueConfig     `yaml:"queue"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig tunes the per-operation trace files. Tracing is off
// unless TraceDir is set.
type TelemetryConfig struct {
	TraceDir      string    `yaml:"trace_dir"`
	FlushInterval Duration  `yaml:"flush_interval"`
	MaxFileSize   SizeBytes `yaml:"max_file_size"`
	BufferSize    SizeBytes `yaml:"buffer_size"`
	QueueCapacity int       `yaml:"queue_capacity"`
}

// ServerConfig holds the admin http endpoint and store settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// GraphConfig holds edge store tuning knobs.
type GraphConfig struct {
	// DefaultLimit is the page size when a read passes none.
	DefaultLimit int `yaml:"default_limit"`
	// DisableWAL turns off the store's write-ahead log; only safe when
	// the durable queue provides its own.
	DisableWAL bool `yaml:"disable_wal"`
}

// SearchConfig selects and tunes the search index backend.
type SearchConfig struct {
	// Backend is "weaviate" or "memory".
	Backend       string            `yaml:"backend"`
	URL           string            `yaml:"url"`
	Class         string            `yaml:"class"`
	MaxScanDepth  int               `yaml:"max_scan_depth"`
	QPS           float64           `yaml:"qps"`
	Burst         int               `yaml:"burst"`
	PropertyTypes map[string]string `yaml:"property_types"`
}

// QueueConfig holds queue settings with mode selection.
type QueueConfig struct {
	Mode              string   `yaml:"mode"` // "durable" or "memory"
	Region            string   `yaml:"region"`
	Capacity          int      `yaml:"capacity"`
	VisibilityTimeout Duration `yaml:"visibility_timeout"`
	Durable           struct {
		Path string `yaml:"path"`
		// NoSync skips the per-write fsync on the queue WAL.
		NoSync       bool      `yaml:"no_sync"`
		MaxFileSize  SizeBytes `yaml:"max_file_size"`
		DisableDBWAL *bool     `yaml:"disable_db_wal"`
	} `yaml:"durable"`
}

// AuditConfig holds configuration for the background metadata sweep.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Path    string `yaml:"path"`
	DryRun  bool   `yaml:"dry_run"`
	// LockTTL controls the lease TTL used when acquiring the sweep
	// lock. Specified as a duration string (e.g. "300s").
	LockTTL Duration `yaml:"lock_ttl"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
