package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateConfigAppliesDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	if cfg.Graph.DefaultLimit != 100 {
		t.Fatalf("graph default limit: %d", cfg.Graph.DefaultLimit)
	}
	if cfg.Queue.Mode != "memory" || cfg.Queue.Region != "local" {
		t.Fatalf("queue defaults: %s %s", cfg.Queue.Mode, cfg.Queue.Region)
	}
	if cfg.Queue.Capacity != 65536 || cfg.Queue.VisibilityTimeout.Duration() != 30*time.Second {
		t.Fatalf("queue sizing defaults: %d %v", cfg.Queue.Capacity, cfg.Queue.VisibilityTimeout.Duration())
	}
	if cfg.Search.Backend != "memory" || cfg.Search.Class != "Entity" || cfg.Search.MaxScanDepth != 10000 {
		t.Fatalf("search defaults: %+v", cfg.Search)
	}
	if cfg.Audit.Cron != "0 2 * * *" || cfg.Audit.LockTTL.Duration() != 300*time.Second {
		t.Fatalf("audit defaults: %+v", cfg.Audit)
	}
	if cfg.Telemetry.FlushInterval.Duration() != 2*time.Second || cfg.Telemetry.QueueCapacity != 2048 {
		t.Fatalf("telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"bad queue mode", func(c *Config) { c.Queue.Mode = "kafka" }},
		{"durable without path", func(c *Config) { c.Queue.Mode = "durable" }},
		{"bad search backend", func(c *Config) { c.Search.Backend = "solr" }},
		{"weaviate without url", func(c *Config) { c.Search.Backend = "weaviate" }},
		{"cert without key", func(c *Config) { c.Server.TLS.CertFile = "/tmp/cert.pem" }},
		{"bad cron", func(c *Config) { c.Audit.Cron = "not a cron" }},
		{"audit without path", func(c *Config) { c.Audit.Enabled = true }},
	}
	for _, c := range cases {
		var cfg Config
		c.mut(&cfg)
		if err := cfg.ValidateConfig(); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /var/lib/usergrid
logging:
  level: debug
graph:
  default_limit: 50
search:
  backend: weaviate
  url: http://weaviate:8080
  max_scan_depth: 5000
queue:
  mode: durable
  region: us-east
  capacity: 1024
  visibility_timeout: 10s
  durable:
    path: /var/lib/usergrid-queue
audit:
  enabled: true
  cron: "*/5 * * * *"
  path: /var/lib/usergrid-audit
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr: %s", cfg.Addr())
	}
	if cfg.Server.DBPath != "/var/lib/usergrid" {
		t.Fatalf("db path: %s", cfg.Server.DBPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level: %s", cfg.Logging.Level)
	}
	if cfg.Graph.DefaultLimit != 50 {
		t.Fatalf("graph limit: %d", cfg.Graph.DefaultLimit)
	}
	if cfg.Search.Backend != "weaviate" || cfg.Search.URL != "http://weaviate:8080" || cfg.Search.MaxScanDepth != 5000 {
		t.Fatalf("search: %+v", cfg.Search)
	}
	if cfg.Queue.Mode != "durable" || cfg.Queue.Region != "us-east" || cfg.Queue.Capacity != 1024 {
		t.Fatalf("queue: %+v", cfg.Queue)
	}
	if cfg.Queue.VisibilityTimeout.Duration() != 10*time.Second {
		t.Fatalf("visibility timeout: %v", cfg.Queue.VisibilityTimeout.Duration())
	}
	if !cfg.Audit.Enabled || cfg.Audit.Cron != "*/5 * * * *" {
		t.Fatalf("audit: %+v", cfg.Audit)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("USERGRID_SERVER_ADDR", "10.0.0.1:9191")
	t.Setenv("USERGRID_DB_PATH", "/data/graph")
	t.Setenv("USERGRID_SEARCH_BACKEND", "Weaviate")
	t.Setenv("USERGRID_SEARCH_URL", "http://weaviate:8080")
	t.Setenv("USERGRID_QUEUE_MODE", "durable")
	t.Setenv("USERGRID_QUEUE_DURABLE_PATH", "/data/queue")
	t.Setenv("USERGRID_QUEUE_VISIBILITY_TIMEOUT", "5s")
	t.Setenv("USERGRID_AUDIT_ENABLED", "true")

	cfg, res := ParseConfigEnvs()
	if !res.EnvUsed {
		t.Fatalf("expected EnvUsed")
	}
	if cfg.Server.Address != "10.0.0.1" || cfg.Server.Port != 9191 {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.Server.DBPath != "/data/graph" {
		t.Fatalf("db path: %s", cfg.Server.DBPath)
	}
	if cfg.Search.Backend != "weaviate" {
		t.Fatalf("search backend: %s", cfg.Search.Backend)
	}
	if cfg.Queue.Mode != "durable" || cfg.Queue.Durable.Path != "/data/queue" {
		t.Fatalf("queue: %+v", cfg.Queue)
	}
	if cfg.Queue.VisibilityTimeout.Duration() != 5*time.Second {
		t.Fatalf("visibility timeout: %v", cfg.Queue.VisibilityTimeout.Duration())
	}
	if !cfg.Audit.Enabled {
		t.Fatalf("audit enabled not parsed")
	}
}

func TestLoadEffectiveConfigSingleSource(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Server.Address = "filehost"
	fileCfg.Server.Port = 7070
	fileCfg.Server.DBPath = "/file/db"

	envCfg := &Config{}
	envCfg.Server.Address = "envhost"
	envCfg.Server.Port = 6060
	envCfg.Server.DBPath = "/env/db"

	// explicit --config wins over everything
	res, err := LoadEffectiveConfig(Flags{Config: "c.yaml", Set: map[string]bool{"config": true}}, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("config source: %v", err)
	}
	if res.Source != "config" || res.Addr != "filehost:7070" || res.DBPath != "/file/db" {
		t.Fatalf("config source result: %+v", res)
	}

	// --config pointing at a missing file is an error, not a fallback
	if _, err := LoadEffectiveConfig(Flags{Config: "c.yaml", Set: map[string]bool{"config": true}}, &Config{}, false, envCfg, EnvResult{}); err == nil {
		t.Fatalf("expected error for missing --config file")
	}

	// addr/db flags beat file and env
	res, err = LoadEffectiveConfig(Flags{Addr: "1.2.3.4:8080", DB: "/flag/db", Set: map[string]bool{"addr": true, "db": true}}, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("flags source: %v", err)
	}
	if res.Source != "flags" || res.Addr != "1.2.3.4:8080" || res.DBPath != "/flag/db" {
		t.Fatalf("flags source result: %+v", res)
	}

	// no flags: file beats env
	res, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("file source: %v", err)
	}
	if res.Source != "config" || res.DBPath != "/file/db" {
		t.Fatalf("file source result: %+v", res)
	}

	// nothing else: env
	res, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("env source: %v", err)
	}
	if res.Source != "env" || res.Addr != "envhost:6060" || res.DBPath != "/env/db" {
		t.Fatalf("env source result: %+v", res)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("USERGRID_SERVER_CONFIG", "/env/server.yaml")
	if got := ResolveConfigPath("/flag.yaml", true); got != "/flag.yaml" {
		t.Fatalf("flag should win: %s", got)
	}
	if got := ResolveConfigPath("/default.yaml", false); got != "/env/server.yaml" {
		t.Fatalf("env should win over default: %s", got)
	}
}
