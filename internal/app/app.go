// Package app wires the graph store, queue, search index, auditor and
// admin server into one process.
package app

import (
	"context"
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/aurodev/usergrid/internal/audit"
	"github.com/aurodev/usergrid/pkg/config"
	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/index/memindex"
	"github.com/aurodev/usergrid/pkg/index/weaviate"
	"github.com/aurodev/usergrid/pkg/logger"
	"github.com/aurodev/usergrid/pkg/queue"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/store/metadata"
	"github.com/aurodev/usergrid/pkg/telemetry"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	srvFast     *fasthttp.Server
	queue       queue.Manager
	searchIdx   index.SearchIndex
	wvIdx       *weaviate.Index // nil when the memory backend is active
	memIdx      *memindex.Index // nil when the weaviate backend is active
	auditCancel context.CancelFunc
	state       string
}

// New sets up resources that don't need a running context (store,
// queue, search client). Call Run to start the auditor and admin
// server and block for lifecycle.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config
	if eff.DBPath == "" {
		return nil, fmt.Errorf("database path is empty: set --db flag, USERGRID_DB_PATH env, or server.db_path in config")
	}

	if err := store.Open(eff.DBPath, cfg.Graph.DisableWAL); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate}

	q, err := buildQueue(cfg)
	if err != nil {
		return nil, err
	}
	a.queue = q
	metadata.SetReplicationQueue(q)

	idx, wv, mem, err := buildSearchIndex(cfg)
	if err != nil {
		return nil, err
	}
	a.searchIdx = idx
	a.wvIdx = wv
	a.memIdx = mem

	return a, nil
}

func buildQueue(cfg *config.Config) (queue.Manager, error) {
	switch cfg.Queue.Mode {
	case "durable":
		d, err := queue.NewDurable(cfg.Queue.Region, cfg.Queue.Capacity, cfg.Queue.Durable.Path, cfg.Queue.Durable.NoSync)
		if err != nil {
			return nil, fmt.Errorf("open durable queue: %w", err)
		}
		d.SetVisibilityTimeout(cfg.Queue.VisibilityTimeout.Duration())
		return d, nil
	default:
		l := queue.NewLocal(cfg.Queue.Region, cfg.Queue.Capacity)
		l.SetVisibilityTimeout(cfg.Queue.VisibilityTimeout.Duration())
		return l, nil
	}
}

func buildSearchIndex(cfg *config.Config) (index.SearchIndex, *weaviate.Index, *memindex.Index, error) {
	switch cfg.Search.Backend {
	case "weaviate":
		wv, err := weaviate.New(weaviate.Config{
			URL:           cfg.Search.URL,
			Class:         cfg.Search.Class,
			MaxScanDepth:  cfg.Search.MaxScanDepth,
			QPS:           cfg.Search.QPS,
			Burst:         cfg.Search.Burst,
			PropertyTypes: cfg.Search.PropertyTypes,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return wv, wv, nil, nil
	default:
		mem := memindex.New(cfg.Search.MaxScanDepth)
		return mem, nil, mem, nil
	}
}

// Run starts the auditor and admin server and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	if a.wvIdx != nil {
		if err := a.wvIdx.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	a.printBanner()

	if dir := a.eff.Config.Telemetry.TraceDir; dir != "" {
		tc := a.eff.Config.Telemetry
		if err := telemetry.InitTracer(dir, int(tc.BufferSize), tc.QueueCapacity, tc.FlushInterval.Duration(), int64(tc.MaxFileSize)); err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
	}

	cancel, err := audit.Start(ctx, audit.Config{
		Enabled: a.eff.Config.Audit.Enabled,
		Cron:    a.eff.Config.Audit.Cron,
		Path:    a.eff.Config.Audit.Path,
		LockTTL: a.eff.Config.Audit.LockTTL.Duration(),
		DryRun:  a.eff.Config.Audit.DryRun,
	})
	if err != nil {
		return err
	}
	a.auditCancel = cancel

	a.startReplicationConsumer(ctx)

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		logger.Info("run_context_done")
		return nil
	case err := <-errCh:
		return err
	}
}
