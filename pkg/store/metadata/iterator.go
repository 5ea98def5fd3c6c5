package metadata

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/store/keys"
)

// TypeIterator is a lazy, forward-only view over one page of type
// strings. Next/Value follow the pebble iterator shape; the page ends
// at the descriptor's limit. Callers resume by re-issuing the search
// with Last set to the final Value of the previous page.
type TypeIterator struct {
	iter    *pebble.Iterator
	prefix  []byte
	limit   int
	emitted int
	value   string
	started bool
}

// GetEdgeTypesFromSource pages the edge types recorded as leaving the
// search node.
func GetEdgeTypesFromSource(scope models.ApplicationScope, search models.SearchEdgeType) (*TypeIterator, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := search.Validate(); err != nil {
		return nil, err
	}
	return newTypeIterator(keys.GenSourceEdgeTypePrefix(scope, search.Node), search.Last, search.Limit)
}

// GetEdgeTypesToTarget pages the edge types recorded as arriving at the
// search node.
func GetEdgeTypesToTarget(scope models.ApplicationScope, search models.SearchEdgeType) (*TypeIterator, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := search.Validate(); err != nil {
		return nil, err
	}
	return newTypeIterator(keys.GenTargetEdgeTypePrefix(scope, search.Node), search.Last, search.Limit)
}

// GetIdTypesFromSource pages the target id types recorded for one edge
// type leaving the search node.
func GetIdTypesFromSource(scope models.ApplicationScope, search models.SearchIdType) (*TypeIterator, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := search.Validate(); err != nil {
		return nil, err
	}
	return newTypeIterator(keys.GenSourceIdTypePrefix(scope, search.Node, search.EdgeType), search.Last, search.Limit)
}

// GetIdTypesToTarget pages the source id types recorded for one edge
// type arriving at the search node.
func GetIdTypesToTarget(scope models.ApplicationScope, search models.SearchIdType) (*TypeIterator, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := search.Validate(); err != nil {
		return nil, err
	}
	return newTypeIterator(keys.GenTargetIdTypePrefix(scope, search.Node, search.EdgeType), search.Last, search.Limit)
}

func newTypeIterator(prefix, last string, limit int) (*TypeIterator, error) {
	seek := prefix
	if last != "" {
		// skip past the last-seen column so resume never replays it
		seek = prefix + last + "\x00"
	}
	iter, err := store.NewPrefixIter(seek)
	if err != nil {
		return nil, err
	}
	return &TypeIterator{iter: iter, prefix: []byte(prefix), limit: clampLimit(limit)}, nil
}

// Next advances to the next type in the page. Returns false at page end,
// prefix end, or on error (check Err).
func (t *TypeIterator) Next() bool {
	if t.emitted >= t.limit {
		return false
	}
	if t.started {
		if !t.iter.Next() {
			return false
		}
	}
	t.started = true
	if !t.iter.Valid() || !bytes.HasPrefix(t.iter.Key(), t.prefix) {
		return false
	}
	t.value = strings.TrimPrefix(string(t.iter.Key()), string(t.prefix))
	t.emitted++
	return true
}

// Value returns the type at the current position.
func (t *TypeIterator) Value() string {
	return t.value
}

// Err returns the first iteration error, if any.
func (t *TypeIterator) Err() error {
	return t.iter.Error()
}

// Close releases the underlying store iterator.
func (t *TypeIterator) Close() error {
	return t.iter.Close()
}
