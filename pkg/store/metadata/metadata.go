// Package metadata maintains the bidirectional type-discovery index for
// graph edges: which edge types leave a node, which arrive at it, and
// which id types sit on the far end of each edge type. The store has no
// native secondary indexes, so both directions are written by hand in
// the same batch as the edge rows.
//
// Mutations return a *pebble.Batch for the caller to apply through
// store.ApplyBatch, so edge insertion and metadata upkeep commit
// atomically. Columns carry the newest edge version and follow
// last-write-wins by version; deletes only land when the stored version
// is at or below the delete version. The delete-safety precondition
// (no other live edge of the type at version <= the delete version) is
// the caller's responsibility and is not enforced here.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/store/keys"
)

// WriteEdge batches both edge rows and all four type-discovery columns
// for the edge. Idempotent: re-writing the same edge changes nothing.
func WriteEdge(scope models.ApplicationScope, edge models.Edge) (*pebble.Batch, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := edge.Validate(); err != nil {
		return nil, err
	}

	b, err := store.NewBatch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}

	val, err := json.Marshal(edge)
	if err != nil {
		return nil, fmt.Errorf("marshal edge: %w", err)
	}
	if err := b.Set([]byte(keys.GenEdgeFromSourceKey(scope, edge)), val, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	if err := b.Set([]byte(keys.GenEdgeToTargetKey(scope, edge)), val, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}

	cols := []string{
		keys.GenSourceEdgeTypeKey(scope, edge.Source, edge.Type),
		keys.GenSourceIdTypeKey(scope, edge.Source, edge.Type, edge.Target.Type),
		keys.GenTargetEdgeTypeKey(scope, edge.Target, edge.Type),
		keys.GenTargetIdTypeKey(scope, edge.Target, edge.Type, edge.Source.Type),
	}
	for _, key := range cols {
		if err := setColumnIfNewer(b, key, edge.Version); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// RemoveEdge batches deletion of both edge rows. Metadata columns are
// left to the explicit Remove* calls or the auditor.
func RemoveEdge(scope models.ApplicationScope, edge models.Edge) (*pebble.Batch, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := edge.Validate(); err != nil {
		return nil, err
	}
	b, err := store.NewBatch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	if err := b.Delete([]byte(keys.GenEdgeFromSourceKey(scope, edge)), nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	if err := b.Delete([]byte(keys.GenEdgeToTargetKey(scope, edge)), nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	return b, nil
}

// RemoveEdgeTypeFromSource removes the forward edge-type column at the
// edge's version. Caller must ensure this is the last edge with this
// type at version <= edge version.
func RemoveEdgeTypeFromSource(scope models.ApplicationScope, edge models.Edge) (*pebble.Batch, error) {
	return RemoveEdgeTypeFromSourceAt(scope, edge.Source, edge.Type, edge.Version)
}

// RemoveEdgeTypeFromSourceAt is the explicit-version form.
func RemoveEdgeTypeFromSourceAt(scope models.ApplicationScope, source models.Id, edgeType string, version uuid.UUID) (*pebble.Batch, error) {
	return removeColumn(scope, source, keys.GenSourceEdgeTypeKey(scope, source, edgeType), version)
}

// RemoveIdTypeFromSource removes the forward id-type column (keyed by
// edge type + target id type) at the edge's version. Same precondition
// as RemoveEdgeTypeFromSource.
func RemoveIdTypeFromSource(scope models.ApplicationScope, edge models.Edge) (*pebble.Batch, error) {
	return RemoveIdTypeFromSourceAt(scope, edge.Source, edge.Type, edge.Target.Type, edge.Version)
}

// RemoveIdTypeFromSourceAt is the explicit-version form.
func RemoveIdTypeFromSourceAt(scope models.ApplicationScope, source models.Id, edgeType, idType string, version uuid.UUID) (*pebble.Batch, error) {
	return removeColumn(scope, source, keys.GenSourceIdTypeKey(scope, source, edgeType, idType), version)
}

// RemoveEdgeTypeToTarget removes the reverse edge-type column at the
// edge's version. Same precondition as RemoveEdgeTypeFromSource.
func RemoveEdgeTypeToTarget(scope models.ApplicationScope, edge models.Edge) (*pebble.Batch, error) {
	return RemoveEdgeTypeToTargetAt(scope, edge.Target, edge.Type, edge.Version)
}

// RemoveEdgeTypeToTargetAt is the explicit-version form.
func RemoveEdgeTypeToTargetAt(scope models.ApplicationScope, target models.Id, edgeType string, version uuid.UUID) (*pebble.Batch, error) {
	return removeColumn(scope, target, keys.GenTargetEdgeTypeKey(scope, target, edgeType), version)
}

// RemoveIdTypeToTarget removes the reverse id-type column (keyed by
// edge type + source id type) at the edge's version.
func RemoveIdTypeToTarget(scope models.ApplicationScope, edge models.Edge) (*pebble.Batch, error) {
	return RemoveIdTypeToTargetAt(scope, edge.Target, edge.Type, edge.Source.Type, edge.Version)
}

// RemoveIdTypeToTargetAt is the explicit-version form.
func RemoveIdTypeToTargetAt(scope models.ApplicationScope, target models.Id, edgeType, idType string, version uuid.UUID) (*pebble.Batch, error) {
	return removeColumn(scope, target, keys.GenTargetIdTypeKey(scope, target, edgeType, idType), version)
}

// CheckDeleteSafety reports whether removing type metadata for (node,
// direction, edgeType) at the given version would violate the liveness
// invariant: returns ErrInvariantRisk when a live edge of that type at
// version <= version still exists. Advisory only; callers must hold the
// node lock across check and delete to make the answer stick.
func CheckDeleteSafety(scope models.ApplicationScope, node models.Id, direction string, edgeType string, version uuid.UUID) error {
	var prefix string
	switch direction {
	case keys.DirSource:
		prefix = keys.GenEdgeFromSourceTypePrefix(scope, node, edgeType)
	case keys.DirTarget:
		prefix = keys.GenEdgeToTargetTypePrefix(scope, node, edgeType)
	default:
		return fmt.Errorf("metadata: unknown direction %q", direction)
	}
	iter, err := store.NewPrefixIter(prefix)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	defer iter.Close()
	for ; iter.Valid() && bytes.HasPrefix(iter.Key(), []byte(prefix)); iter.Next() {
		parts, perr := keys.ParseEdgeKey(string(iter.Key()))
		if perr != nil {
			continue
		}
		if bytes.Compare(parts.Version[:], version[:]) <= 0 {
			return fmt.Errorf("%w: live edge %s at version %s", ErrInvariantRisk, edgeType, parts.Version)
		}
	}
	return iter.Error()
}

// writes the column when absent or when the edge version is newer than
// the stored one (last-write-wins by version)
func setColumnIfNewer(b *pebble.Batch, key string, version uuid.UUID) error {
	cur, closer, err := b.Get([]byte(key))
	if err == pebble.ErrNotFound {
		if serr := b.Set([]byte(key), version[:], nil); serr != nil {
			return fmt.Errorf("%w: %v", ErrIndexWrite, serr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	newer := bytes.Compare(version[:], cur) > 0
	if cerr := closer.Close(); cerr != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, cerr)
	}
	if newer {
		if serr := b.Set([]byte(key), version[:], nil); serr != nil {
			return fmt.Errorf("%w: %v", ErrIndexWrite, serr)
		}
	}
	return nil
}

// deletes the column only when the stored version is <= the delete
// version; a newer concurrent write survives the delete
func removeColumn(scope models.ApplicationScope, node models.Id, key string, version uuid.UUID) (*pebble.Batch, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	if version == uuid.Nil {
		return nil, fmt.Errorf("metadata: nil delete version")
	}
	b, err := store.NewBatch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	cur, closer, gerr := b.Get([]byte(key))
	if gerr == pebble.ErrNotFound {
		return b, nil
	}
	if gerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, gerr)
	}
	stale := bytes.Compare(cur, version[:]) <= 0
	if cerr := closer.Close(); cerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWrite, cerr)
	}
	if stale {
		if derr := b.Delete([]byte(key), nil); derr != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexWrite, derr)
		}
	}
	return b, nil
}
