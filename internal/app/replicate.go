package app

import (
	"context"
	"errors"
	"time"

	"github.com/aurodev/usergrid/pkg/logger"
	"github.com/aurodev/usergrid/pkg/queue"
	"github.com/aurodev/usergrid/pkg/store/metadata"
)

const (
	replicationPollInterval = 250 * time.Millisecond
	replicationBatchSize    = 128
)

// startReplicationConsumer drains the replication queue in the
// background: peer-origin notifications are re-applied, own-origin ones
// acknowledged, and every applied message committed. A notification
// that fails to apply stays uncommitted and redelivers after the
// visibility timeout.
func (a *App) startReplicationConsumer(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(replicationPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !a.drainReplication() {
				return
			}
		}
	}()
}

// drainReplication empties the visible backlog. Returns false once the
// queue is closed.
func (a *App) drainReplication() bool {
	for {
		ms, err := a.queue.GetMessages(replicationBatchSize)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				return false
			}
			logger.Warn("replication_read_failed", "error", err)
			return true
		}
		if len(ms) == 0 {
			return true
		}
		applied := make([]queue.Message, 0, len(ms))
		for _, m := range ms {
			if err := metadata.ApplyNotification(m.Body); err != nil {
				logger.Warn("replication_apply_failed", "id", m.ID, "error", err)
				continue
			}
			applied = append(applied, m)
		}
		if len(applied) == 0 {
			return true
		}
		if err := a.queue.CommitMessages(applied); err != nil {
			logger.Warn("replication_commit_failed", "error", err)
		}
	}
}
