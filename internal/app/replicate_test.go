package app

import (
	"encoding/json"
	"testing"

	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/queue"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/store/keys"
	"github.com/aurodev/usergrid/pkg/store/metadata"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir(), false); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
}

// the consumer must acknowledge notifications this region published
// itself, or every edge write piles one message onto the queue forever
func TestDrainReplicationAcknowledgesOwnWrites(t *testing.T) {
	openStore(t)
	q := queue.NewLocal("us-east", 16)
	metadata.SetReplicationQueue(q)
	t.Cleanup(func() { metadata.SetReplicationQueue(nil) })
	a := &App{queue: q}

	scope := models.NewApplicationScope(models.NewId("application"))
	edge := models.NewEdge(models.NewId("user"), "likes", models.NewId("post"))
	if err := metadata.ApplyEdgeWrite(scope, edge, false); err != nil {
		t.Fatalf("ApplyEdgeWrite: %v", err)
	}
	if depth, _ := q.GetQueueDepth(); depth != 1 {
		t.Fatalf("depth before drain = %d, want 1", depth)
	}

	if !a.drainReplication() {
		t.Fatalf("drain reported closed queue")
	}
	depth, err := q.GetQueueDepth()
	if err != nil || depth != 0 {
		t.Fatalf("depth after drain: %v %d", err, depth)
	}
	// committed, not parked in flight: nothing redelivers
	if msgs, _ := q.GetMessages(10); len(msgs) != 0 {
		t.Fatalf("%d messages still deliverable after drain", len(msgs))
	}
}

func TestDrainReplicationAppliesPeerNotification(t *testing.T) {
	openStore(t)
	q := queue.NewLocal("us-east", 16)
	metadata.SetReplicationQueue(q)
	t.Cleanup(func() { metadata.SetReplicationQueue(nil) })
	a := &App{queue: q}

	scope := models.NewApplicationScope(models.NewId("application"))
	edge := models.NewEdge(models.NewId("user"), "owns", models.NewId("device"))
	body, err := json.Marshal(metadata.Notification{Op: metadata.OpEdgeWrite, Origin: "eu-west", Scope: scope, Edge: edge})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := q.SendMessages([][]byte{body}); err != nil {
		t.Fatalf("SendMessages: %v", err)
	}

	if !a.drainReplication() {
		t.Fatalf("drain reported closed queue")
	}
	if _, ok, _ := store.Get(keys.GenEdgeFromSourceKey(scope, edge)); !ok {
		t.Fatalf("peer edge write not applied")
	}
	if depth, _ := q.GetQueueDepth(); depth != 0 {
		t.Fatalf("depth after drain = %d, want 0", depth)
	}
}

func TestDrainReplicationStopsOnClosedQueue(t *testing.T) {
	openStore(t)
	q := queue.NewLocal("us-east", 16)
	a := &App{queue: q}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.drainReplication() {
		t.Fatalf("drain should report closed queue")
	}
}
