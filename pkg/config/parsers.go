package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr     string
	DB       string
	Config   string
	Set      map[string]bool
	Validate bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	EnvUsed bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// parses command-line flags and returns them as a Flags struct
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "admin listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()

	// record which flags were set explicitly
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads environment variables into a new Config and returns it with EnvResult; caller config is unchanged
func ParseConfigEnvs() (*Config, EnvResult) {
	envs := map[string]string{
		"SERVER_ADDR":    os.Getenv("USERGRID_SERVER_ADDR"),
		"ADDR":           os.Getenv("USERGRID_ADDR"),
		"SERVER_ADDRESS": os.Getenv("USERGRID_SERVER_ADDRESS"),
		"SERVER_PORT":    os.Getenv("USERGRID_SERVER_PORT"),
		"SERVER_DB_PATH": os.Getenv("USERGRID_SERVER_DB_PATH"),
		"DB_PATH":        os.Getenv("USERGRID_DB_PATH"),
		"TLS_CERT":       os.Getenv("USERGRID_TLS_CERT"),
		"TLS_KEY":        os.Getenv("USERGRID_TLS_KEY"),

		// logging
		"LOG_LEVEL": os.Getenv("USERGRID_LOG_LEVEL"),

		// graph
		"GRAPH_DEFAULT_LIMIT": os.Getenv("USERGRID_GRAPH_DEFAULT_LIMIT"),
		"GRAPH_DISABLE_WAL":   os.Getenv("USERGRID_GRAPH_DISABLE_WAL"),

		// search index
		"SEARCH_BACKEND":        os.Getenv("USERGRID_SEARCH_BACKEND"),
		"SEARCH_URL":            os.Getenv("USERGRID_SEARCH_URL"),
		"SEARCH_CLASS":          os.Getenv("USERGRID_SEARCH_CLASS"),
		"SEARCH_MAX_SCAN_DEPTH": os.Getenv("USERGRID_SEARCH_MAX_SCAN_DEPTH"),
		"SEARCH_QPS":            os.Getenv("USERGRID_SEARCH_QPS"),
		"SEARCH_BURST":          os.Getenv("USERGRID_SEARCH_BURST"),

		// queue
		"QUEUE_MODE":                  os.Getenv("USERGRID_QUEUE_MODE"),
		"QUEUE_REGION":                os.Getenv("USERGRID_QUEUE_REGION"),
		"QUEUE_CAPACITY":              os.Getenv("USERGRID_QUEUE_CAPACITY"),
		"QUEUE_VISIBILITY_TIMEOUT":    os.Getenv("USERGRID_QUEUE_VISIBILITY_TIMEOUT"),
		"QUEUE_DURABLE_PATH":          os.Getenv("USERGRID_QUEUE_DURABLE_PATH"),
		"QUEUE_DURABLE_NO_SYNC":       os.Getenv("USERGRID_QUEUE_DURABLE_NO_SYNC"),
		"QUEUE_DURABLE_MAX_FILE_SIZE": os.Getenv("USERGRID_QUEUE_DURABLE_MAX_FILE_SIZE"),

		// audit sweep
		"AUDIT_ENABLED":  os.Getenv("USERGRID_AUDIT_ENABLED"),
		"AUDIT_CRON":     os.Getenv("USERGRID_AUDIT_CRON"),
		"AUDIT_PATH":     os.Getenv("USERGRID_AUDIT_PATH"),
		"AUDIT_DRY_RUN":  os.Getenv("USERGRID_AUDIT_DRY_RUN"),
		"AUDIT_LOCK_TTL": os.Getenv("USERGRID_AUDIT_LOCK_TTL"),

		// trace files
		"TRACE_DIR": os.Getenv("USERGRID_TRACE_DIR"),
	}

	// check if any env was set
	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	parseBool := func(v string, def bool) bool {
		if v == "" {
			return def
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}

	parseSizeBytes := func(v string) SizeBytes {
		if strings.TrimSpace(v) == "" {
			return SizeBytes(0)
		}
		if u, err := humanize.ParseBytes(v); err == nil {
			return SizeBytes(u)
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return SizeBytes(i)
		}
		return SizeBytes(0)
	}

	parseDuration := func(v string) Duration {
		if strings.TrimSpace(v) == "" {
			return Duration(0)
		}
		if td, err := time.ParseDuration(v); err == nil {
			return Duration(td)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return Duration(time.Duration(f * float64(time.Second)))
		}
		return Duration(0)
	}

	// address variables keep their precedence order
	if v := envs["SERVER_ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	} else if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	} else {
		if host := envs["SERVER_ADDRESS"]; host != "" {
			envCfg.Server.Address = host
		}
		if port := envs["SERVER_PORT"]; port != "" {
			if pi, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}

	if v := envs["SERVER_DB_PATH"]; v != "" {
		envCfg.Server.DBPath = v
	} else if v := envs["DB_PATH"]; v != "" {
		envCfg.Server.DBPath = v
	}

	if c := envs["TLS_CERT"]; c != "" {
		envCfg.Server.TLS.CertFile = c
	}
	if k := envs["TLS_KEY"]; k != "" {
		envCfg.Server.TLS.KeyFile = k
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		envCfg.Logging.Level = strings.TrimSpace(v)
	}

	// graph env overrides
	if v := envs["GRAPH_DEFAULT_LIMIT"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Graph.DefaultLimit = n
		}
	}
	if v := envs["GRAPH_DISABLE_WAL"]; v != "" {
		envCfg.Graph.DisableWAL = parseBool(v, false)
	}

	// search env overrides
	if v := envs["SEARCH_BACKEND"]; v != "" {
		envCfg.Search.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := envs["SEARCH_URL"]; v != "" {
		envCfg.Search.URL = strings.TrimSpace(v)
	}
	if v := envs["SEARCH_CLASS"]; v != "" {
		envCfg.Search.Class = strings.TrimSpace(v)
	}
	if v := envs["SEARCH_MAX_SCAN_DEPTH"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Search.MaxScanDepth = n
		}
	}
	if v := envs["SEARCH_QPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Search.QPS = f
		}
	}
	if v := envs["SEARCH_BURST"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Search.Burst = n
		}
	}

	// queue env overrides
	if v := envs["QUEUE_MODE"]; v != "" {
		envCfg.Queue.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := envs["QUEUE_REGION"]; v != "" {
		envCfg.Queue.Region = strings.TrimSpace(v)
	}
	if v := envs["QUEUE_CAPACITY"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Queue.Capacity = n
		}
	}
	if v := envs["QUEUE_VISIBILITY_TIMEOUT"]; v != "" {
		envCfg.Queue.VisibilityTimeout = parseDuration(v)
	}
	if v := envs["QUEUE_DURABLE_PATH"]; v != "" {
		envCfg.Queue.Durable.Path = strings.TrimSpace(v)
	}
	if v := envs["QUEUE_DURABLE_NO_SYNC"]; v != "" {
		envCfg.Queue.Durable.NoSync = parseBool(v, false)
	}
	if v := envs["QUEUE_DURABLE_MAX_FILE_SIZE"]; v != "" {
		envCfg.Queue.Durable.MaxFileSize = parseSizeBytes(v)
	}

	// audit env overrides
	if v := envs["AUDIT_ENABLED"]; v != "" {
		envCfg.Audit.Enabled = parseBool(v, false)
	}
	if v := envs["AUDIT_CRON"]; v != "" {
		envCfg.Audit.Cron = strings.TrimSpace(v)
	}
	if v := envs["AUDIT_PATH"]; v != "" {
		envCfg.Audit.Path = strings.TrimSpace(v)
	}
	if v := envs["AUDIT_DRY_RUN"]; v != "" {
		envCfg.Audit.DryRun = parseBool(v, false)
	}
	if v := envs["AUDIT_LOCK_TTL"]; v != "" {
		envCfg.Audit.LockTTL = parseDuration(v)
	}

	if v := envs["TRACE_DIR"]; v != "" {
		envCfg.Telemetry.TraceDir = strings.TrimSpace(v)
	}

	return envCfg, EnvResult{EnvUsed: envUsed}
}

// decides which single source to use (flags, config file, or env) and returns the effective config plus resolved addr and dbPath. if --config is set, only the config file is used; otherwise flags if set; else config file if present; else env
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["db"] {
		addr := flags.Addr
		if !flags.Set["addr"] {
			addr = envCfg.Addr()
			if addr == "" {
				addr = fileCfg.Addr()
			}
		}
		dbPath := flags.DB
		if !flags.Set["db"] {
			if p := strings.TrimSpace(envCfg.Server.DBPath); p != "" {
				dbPath = p
			} else if p := strings.TrimSpace(fileCfg.Server.DBPath); p != "" {
				dbPath = p
			}
		}
		out := &Config{}
		out.Server.Address = addr
		out.Server.Port = parsePortFromAddr(addr)
		out.Server.DBPath = dbPath
		res.Config = out
		res.Addr = addr
		res.DBPath = dbPath
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}
	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.DBPath = envCfg.Server.DBPath
	res.Source = "env"
	return res, nil
}

// extracts port integer from host:port string
func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return pi
		}
	}
	return 0
}
