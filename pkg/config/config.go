package config

import (
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

// Defaults for graph, queue, search and audit configuration.
const (
	defaultGraphLimit = 100

	defaultQueueCapacity          = 65536
	defaultQueueVisibilityTimeout = 30 * time.Second

	defaultSearchBackend      = "memory"
	defaultSearchClass        = "Entity"
	defaultSearchMaxScanDepth = 10000

	defaultAuditLockTTL = 300 * time.Second
	defaultAuditCron    = "0 2 * * *" // daily at 02:00

	defaultTraceFlushInterval = 2 * time.Second
	defaultTraceMaxFileSize   = 40 * 1024 * 1024
	defaultTraceBufferSize    = 64 * 1024
	defaultTraceQueueCapacity = 2048
)

// Addr returns the admin server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig applies defaults and validates values in the config.
// It mutates the receiver to fill in missing defaults and returns an
// error if any configuration value is invalid.
func (c *Config) ValidateConfig() error {
	// graph defaults
	if c.Graph.DefaultLimit <= 0 {
		c.Graph.DefaultLimit = defaultGraphLimit
	}

	// queue defaults
	if c.Queue.Mode == "" {
		c.Queue.Mode = "memory"
	}
	if c.Queue.Mode != "memory" && c.Queue.Mode != "durable" {
		return fmt.Errorf("invalid queue.mode: %q (want memory or durable)", c.Queue.Mode)
	}
	if c.Queue.Region == "" {
		c.Queue.Region = "local"
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = defaultQueueCapacity
	}
	if c.Queue.VisibilityTimeout.Duration() == 0 {
		c.Queue.VisibilityTimeout = Duration(defaultQueueVisibilityTimeout)
	}
	if c.Queue.Mode == "durable" && c.Queue.Durable.Path == "" {
		return fmt.Errorf("queue.durable.path required when queue.mode is durable")
	}

	// search defaults
	if c.Search.Backend == "" {
		c.Search.Backend = defaultSearchBackend
	}
	if c.Search.Backend != "memory" && c.Search.Backend != "weaviate" {
		return fmt.Errorf("invalid search.backend: %q (want memory or weaviate)", c.Search.Backend)
	}
	if c.Search.Backend == "weaviate" && c.Search.URL == "" {
		return fmt.Errorf("search.url required when search.backend is weaviate")
	}
	if c.Search.Class == "" {
		c.Search.Class = defaultSearchClass
	}
	if c.Search.MaxScanDepth <= 0 {
		c.Search.MaxScanDepth = defaultSearchMaxScanDepth
	}

	// tls cert/key come as a pair
	cert, key := c.Server.TLS.CertFile, c.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// audit defaults
	if c.Audit.LockTTL.Duration() == 0 {
		c.Audit.LockTTL = Duration(defaultAuditLockTTL)
	}
	if c.Audit.Cron == "" {
		c.Audit.Cron = defaultAuditCron
	}
	if !gronx.IsValid(c.Audit.Cron) {
		return fmt.Errorf("invalid audit cron expression: %s", c.Audit.Cron)
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path required when audit is enabled")
	}

	// telemetry defaults
	if c.Telemetry.FlushInterval.Duration() == 0 {
		c.Telemetry.FlushInterval = Duration(defaultTraceFlushInterval)
	}
	if c.Telemetry.MaxFileSize == 0 {
		c.Telemetry.MaxFileSize = SizeBytes(defaultTraceMaxFileSize)
	}
	if c.Telemetry.BufferSize == 0 {
		c.Telemetry.BufferSize = SizeBytes(defaultTraceBufferSize)
	}
	if c.Telemetry.QueueCapacity <= 0 {
		c.Telemetry.QueueCapacity = defaultTraceQueueCapacity
	}

	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("USERGRID_SERVER_CONFIG"); p != "" {
		return p
	}
	if p := os.Getenv("USERGRID_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
