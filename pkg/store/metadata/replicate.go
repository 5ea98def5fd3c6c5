package metadata

import (
	"encoding/json"
	"sync"

	"github.com/aurodev/usergrid/pkg/logger"
	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/queue"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/telemetry"
)

// Mutation ops carried in replication notifications.
const (
	OpEdgeWrite  = "edge.write"
	OpEdgeRemove = "edge.remove"
)

// Notification is the queued record of one applied edge mutation.
// Consumers re-apply it in their region and commit the message. Origin
// names the region that performed the mutation so a consumer does not
// re-apply its own writes.
type Notification struct {
	Op     string                  `json:"op"`
	Origin string                  `json:"origin,omitempty"`
	Scope  models.ApplicationScope `json:"scope"`
	Edge   models.Edge             `json:"edge"`
}

var (
	replMu     sync.RWMutex
	replQueue  queue.Manager
	replRegion string
)

// SetReplicationQueue attaches the queue used to propagate applied edge
// mutations to other regions. Nil detaches. The queue's region, when it
// exposes one, becomes the origin stamped on published notifications.
func SetReplicationQueue(q queue.Manager) {
	replMu.Lock()
	defer replMu.Unlock()
	replQueue = q
	replRegion = ""
	if q != nil {
		if r, ok := q.(interface{ Region() string }); ok {
			replRegion = r.Region()
		}
	}
}

// ApplyEdgeWrite builds, applies, and (when a queue is attached)
// replicates one edge write.
func ApplyEdgeWrite(scope models.ApplicationScope, edge models.Edge, sync bool) error {
	b, err := WriteEdge(scope, edge)
	if err != nil {
		return err
	}
	if err := store.ApplyBatch(b, sync); err != nil {
		return err
	}
	telemetry.EdgeWrites.Inc()
	publish(Notification{Op: OpEdgeWrite, Scope: scope, Edge: edge})
	return nil
}

// ApplyEdgeRemove builds, applies, and replicates one edge removal.
func ApplyEdgeRemove(scope models.ApplicationScope, edge models.Edge, sync bool) error {
	b, err := RemoveEdge(scope, edge)
	if err != nil {
		return err
	}
	if err := store.ApplyBatch(b, sync); err != nil {
		return err
	}
	telemetry.EdgeRemovals.Inc()
	publish(Notification{Op: OpEdgeRemove, Scope: scope, Edge: edge})
	return nil
}

// ApplyNotification re-applies a mutation received from another region.
// Writes are idempotent, so redelivery is harmless. Notifications this
// region published itself are acknowledged without re-applying.
func ApplyNotification(body []byte) error {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return err
	}
	replMu.RLock()
	self := replRegion
	replMu.RUnlock()
	if n.Origin != "" && n.Origin == self {
		return nil
	}
	switch n.Op {
	case OpEdgeWrite:
		batch, err := WriteEdge(n.Scope, n.Edge)
		if err != nil {
			return err
		}
		return store.ApplyBatch(batch, false)
	case OpEdgeRemove:
		batch, err := RemoveEdge(n.Scope, n.Edge)
		if err != nil {
			return err
		}
		return store.ApplyBatch(batch, false)
	default:
		logger.Warn("replication_unknown_op", "op", n.Op)
		return nil
	}
}

// best-effort: replication loss is repaired by the auditor, local state
// is already committed
func publish(n Notification) {
	replMu.RLock()
	q := replQueue
	n.Origin = replRegion
	replMu.RUnlock()
	if q == nil {
		return
	}
	body, err := json.Marshal(n)
	if err != nil {
		logger.Error("replication_marshal_failed", "op", n.Op, "error", err)
		return
	}
	if err := q.SendMessageToAllRegions(body, true); err != nil {
		logger.Warn("replication_send_failed", "op", n.Op, "error", err)
	}
}
