package audit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/logger"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/store/keys"
	"github.com/aurodev/usergrid/pkg/store/locks"
	"github.com/aurodev/usergrid/pkg/store/metadata"
	"github.com/aurodev/usergrid/pkg/telemetry"
)

// column is one metadata key captured during the scan phase, with the
// version stored at scan time.
type column struct {
	key     string
	parts   *keys.MetadataKeyParts
	version uuid.UUID
}

// runOnce executes a single sweep: acquire lease, scan metadata
// columns, delete the ones no live edge backs anymore.
func runOnce(ctx context.Context, cfg Config) error {
	owner := uuid.NewString()
	lock := newFileLease(cfg.Path)
	acq, err := lock.Acquire(owner, cfg.LockTTL)
	if err != nil {
		logger.Error("audit_lease_acquire_error", "error", err)
		return fmt.Errorf("lease acquire failed: %w", err)
	}
	if !acq {
		logger.Info("audit_lease_not_acquired")
		return nil
	}
	defer func() {
		if err := lock.Release(owner); err != nil {
			logger.Error("audit_lease_release_error", "error", err)
		}
	}()

	// abort the run if the lease cannot be renewed repeatedly
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	hbCtx, hbCancel := context.WithCancel(runCtx)
	defer hbCancel()
	go func() {
		t := time.NewTicker(cfg.LockTTL / 3)
		defer t.Stop()
		var failCount int
		const maxConsecutiveRenewFails = 3
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := lock.Renew(owner, cfg.LockTTL); err != nil {
					failCount++
					logger.Error("audit_lease_renew_failed", "error", err, "count", failCount)
					if failCount >= maxConsecutiveRenewFails {
						logger.Error("audit_lease_renew_failed_fatal", "owner", owner)
						runCancel()
						return
					}
				} else {
					failCount = 0
				}
			}
		}
	}()

	runID := uuid.NewString()
	logger.Info("audit_run_start", "run_id", runID, "owner", owner, "dry_run", cfg.DryRun)
	telemetry.AuditRuns.Inc()

	cols, err := scanColumns()
	if err != nil {
		return fmt.Errorf("scan metadata columns: %w", err)
	}

	var removed int
	for _, c := range cols {
		select {
		case <-runCtx.Done():
			return fmt.Errorf("audit run aborted: %w", runCtx.Err())
		default:
		}
		orphan, err := sweepColumn(c, cfg.DryRun)
		if err != nil {
			logger.Error("audit_column_failed", "key", c.key, "error", err)
			continue
		}
		if orphan {
			removed++
			telemetry.AuditOrphansRemoved.Inc()
		}
	}

	logger.Info("audit_run_done", "run_id", runID, "scanned", len(cols), "removed", removed, "dry_run", cfg.DryRun)
	return nil
}

// scanColumns captures every metadata column across all scopes.
func scanColumns() ([]column, error) {
	iter, err := store.NewPrefixIter(keys.AllMetadataPrefix)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var cols []column
	for ; iter.Valid() && bytes.HasPrefix(iter.Key(), []byte(keys.AllMetadataPrefix)); iter.Next() {
		key := string(iter.Key())
		parts, perr := keys.ParseMetadataKey(key)
		if perr != nil {
			logger.Warn("audit_unparseable_key", "key", key, "error", perr)
			continue
		}
		version, verr := uuid.FromBytes(iter.Value())
		if verr != nil {
			logger.Warn("audit_unparseable_version", "key", key, "error", verr)
			continue
		}
		cols = append(cols, column{key: key, parts: parts, version: version})
	}
	return cols, iter.Error()
}

// sweepColumn deletes one column when no live edge backs it. The node
// lock is held across the liveness check and the delete so a concurrent
// writer cannot slip an edge in between.
func sweepColumn(c column, dryRun bool) (bool, error) {
	mu := locks.ForNode(c.parts.Scope, c.parts.Node)
	mu.Lock()
	defer mu.Unlock()

	live, err := columnLive(c.parts)
	if err != nil {
		return false, err
	}
	if live {
		return false, nil
	}
	if dryRun {
		logger.Info("audit_orphan_found", "key", c.key, "version", c.version.String())
		return true, nil
	}

	b, err := removeBatch(c)
	if err != nil {
		return false, err
	}
	if err := store.ApplyBatch(b, true); err != nil {
		return false, err
	}
	telemetry.MetadataDeletes.Inc()
	logger.Info("audit_orphan_removed", "key", c.key, "version", c.version.String())
	return true, nil
}

// columnLive reports whether any live edge still backs the column. For
// id-type columns the far end of the edge must match the column's id
// type.
func columnLive(parts *keys.MetadataKeyParts) (bool, error) {
	var prefix string
	switch parts.Direction {
	case keys.DirSource:
		prefix = keys.GenEdgeFromSourceTypePrefix(parts.Scope, parts.Node, parts.EdgeType)
	case keys.DirTarget:
		prefix = keys.GenEdgeToTargetTypePrefix(parts.Scope, parts.Node, parts.EdgeType)
	default:
		return false, fmt.Errorf("audit: unknown direction %q", parts.Direction)
	}

	iter, err := store.NewPrefixIter(prefix)
	if err != nil {
		return false, err
	}
	defer iter.Close()
	for ; iter.Valid() && bytes.HasPrefix(iter.Key(), []byte(prefix)); iter.Next() {
		ep, perr := keys.ParseEdgeKey(string(iter.Key()))
		if perr != nil {
			continue
		}
		if parts.Kind == keys.KindEdgeType {
			return true, nil
		}
		far := ep.Target.Type
		if parts.Direction == keys.DirTarget {
			far = ep.Source.Type
		}
		if far == parts.IdType {
			return true, nil
		}
	}
	return false, iter.Error()
}

func removeBatch(c column) (*pebble.Batch, error) {
	p := c.parts
	switch {
	case p.Direction == keys.DirSource && p.Kind == keys.KindEdgeType:
		return metadata.RemoveEdgeTypeFromSourceAt(p.Scope, p.Node, p.EdgeType, c.version)
	case p.Direction == keys.DirSource && p.Kind == keys.KindIdType:
		return metadata.RemoveIdTypeFromSourceAt(p.Scope, p.Node, p.EdgeType, p.IdType, c.version)
	case p.Direction == keys.DirTarget && p.Kind == keys.KindEdgeType:
		return metadata.RemoveEdgeTypeToTargetAt(p.Scope, p.Node, p.EdgeType, c.version)
	default:
		return metadata.RemoveIdTypeToTargetAt(p.Scope, p.Node, p.EdgeType, p.IdType, c.version)
	}
}
