// Package audit repairs the type-discovery index in the background.
// Edge removal deletes edge rows but leaves metadata columns to the
// explicit removal calls, which callers skip when they cannot prove the
// delete-safety precondition. The auditor sweeps metadata columns on a
// cron schedule, finds columns no live edge backs anymore, and deletes
// them at their stored version. A file lease keeps concurrent processes
// from running the sweep twice.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/aurodev/usergrid/pkg/logger"
)

// Config controls the background sweep.
type Config struct {
	Enabled bool
	// Cron is a standard five-field cron expression.
	Cron string
	// Path is the directory holding the lease file.
	Path string
	// LockTTL bounds how long a crashed runner blocks the next one.
	LockTTL time.Duration
	// DryRun reports orphans without deleting them.
	DryRun bool
}

var (
	globalManager *Manager
	managerMutex  sync.Mutex
)

// Manager owns the cron loop.
type Manager struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mutex   sync.Mutex
}

// Start launches the schedule loop when auditing is enabled. The
// returned cancel stops it.
func Start(ctx context.Context, cfg Config) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("audit_disabled")
		return func() {}, nil
	}
	if cfg.Cron == "" {
		return nil, fmt.Errorf("audit: empty cron expression")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}

	ctx2, cancel := context.WithCancel(ctx)
	m := &Manager{cfg: cfg, ctx: ctx2, cancel: cancel}

	managerMutex.Lock()
	globalManager = m
	managerMutex.Unlock()

	logger.Info("audit_enabled", "cron", cfg.Cron)
	go m.scheduleLoop()
	return cancel, nil
}

// RunImmediate triggers a sweep outside the schedule.
func RunImmediate() error {
	managerMutex.Lock()
	m := globalManager
	managerMutex.Unlock()

	if m == nil {
		return fmt.Errorf("audit manager not initialized - call Start() first")
	}
	return m.runJob()
}

func (m *Manager) scheduleLoop() {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, time.Now(), false)
		if err != nil {
			logger.Error("audit_nexttick_failed", "cron", m.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-m.ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			m.runJob()
			select {
			case <-time.After(time.Second):
			case <-m.ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			m.runJob()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) runJob() error {
	m.mutex.Lock()
	if m.running {
		m.mutex.Unlock()
		return nil
	}
	m.running = true
	m.mutex.Unlock()

	defer func() {
		m.mutex.Lock()
		m.running = false
		m.mutex.Unlock()
	}()

	if err := runOnce(m.ctx, m.cfg); err != nil {
		logger.Error("audit_run_error", "error", err)
		return err
	}
	return nil
}
