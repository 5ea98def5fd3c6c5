package app

import (
	"context"

	"github.com/aurodev/usergrid/pkg/logger"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/telemetry"
)

// Shutdown tears the components down in reverse start order: admin
// server first so no new work arrives, then the auditor, queue and
// store.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"

	if a.srvFast != nil {
		if err := a.srvFast.ShutdownWithContext(ctx); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
		}
	}
	if a.auditCancel != nil {
		a.auditCancel()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			logger.Error("queue_close_failed", "error", err)
		}
	}
	telemetry.CloseTracer()
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
		return err
	}

	a.state = "stopped"
	logger.Info("shutdown_complete")
	return nil
}
