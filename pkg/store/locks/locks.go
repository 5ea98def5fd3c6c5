// Package locks serializes write/delete sequences against a single graph
// node. The metadata index itself performs no locking; callers that run a
// delete-after-liveness-check must hold the node lock across both steps so
// a concurrent writer cannot revive the type between check and delete.
package locks

import (
	"sync"

	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/store/keys"
)

var (
	nodeLocks = make(map[string]*sync.Mutex)
	locksMu   sync.Mutex
)

// ForNode returns the mutex for the given scoped node (creates if needed).
func ForNode(scope models.ApplicationScope, node models.Id) *sync.Mutex {
	key := keys.ScopeSegment(scope) + ":" + keys.IdSegment(node)
	locksMu.Lock()
	defer locksMu.Unlock()
	if l, ok := nodeLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	nodeLocks[key] = l
	return l
}
