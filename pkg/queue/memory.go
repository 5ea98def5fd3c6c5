package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/telemetry"
)

// DefaultVisibilityTimeout is how long a read message stays invisible
// before redelivery.
const DefaultVisibilityTimeout = 30 * time.Second

// Local is a bounded in-memory queue region. Reads move messages to an
// in-flight set keyed by receipt handle; uncommitted messages return to
// the visible list after the visibility timeout.
type Local struct {
	region   string
	capacity int
	timeout  time.Duration

	mu       sync.Mutex
	visible  []Message
	inflight map[string]inflightEntry
	peers    map[string]Manager
	closed   bool
}

type inflightEntry struct {
	msg      Message
	deadline time.Time
}

// NewLocal creates a bounded local queue region.
func NewLocal(region string, capacity int) *Local {
	if capacity <= 0 {
		panic("queue.NewLocal: capacity must be > 0; ensure config validation applied defaults")
	}
	return &Local{
		region:   region,
		capacity: capacity,
		timeout:  DefaultVisibilityTimeout,
		inflight: make(map[string]inflightEntry),
		peers:    make(map[string]Manager),
	}
}

// SetVisibilityTimeout overrides the redelivery timeout (tests shorten it).
func (q *Local) SetVisibilityTimeout(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.timeout = d
}

// AttachRegion registers a peer region for all-regions sends.
func (q *Local) AttachRegion(name string, m Manager) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.peers[name] = m
}

// Region returns the region name.
func (q *Local) Region() string {
	return q.region
}

func (q *Local) GetMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	q.requeueExpiredLocked()

	n := limit
	if n > len(q.visible) {
		n = len(q.visible)
	}
	out := make([]Message, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		m := q.visible[i]
		m.Handle = uuid.NewString()
		q.inflight[m.Handle] = inflightEntry{msg: m, deadline: now.Add(q.timeout)}
		out = append(out, m)
	}
	q.visible = q.visible[n:]
	q.updateDepthLocked()
	return out, nil
}

func (q *Local) GetQueueDepth() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrQueueClosed
	}
	q.requeueExpiredLocked()
	return int64(len(q.visible)), nil
}

func (q *Local) CommitMessage(m Message) error {
	return q.CommitMessages([]Message{m})
}

func (q *Local) CommitMessages(ms []Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	for _, m := range ms {
		if _, ok := q.inflight[m.Handle]; !ok {
			return ErrUnknownHandle
		}
		delete(q.inflight, m.Handle)
	}
	return nil
}

func (q *Local) SendMessages(bodies [][]byte) error {
	return q.send(bodies)
}

func (q *Local) SendMessagesAsync(bodies [][]byte) error {
	// no durability to wait on in memory; same as SendMessages
	return q.send(bodies)
}

func (q *Local) SendMessageToLocalRegion(body []byte, async bool) error {
	if async {
		return q.SendMessagesAsync([][]byte{body})
	}
	return q.SendMessages([][]byte{body})
}

func (q *Local) SendMessageToAllRegions(body []byte, async bool) error {
	if err := q.SendMessageToLocalRegion(body, async); err != nil {
		return err
	}
	q.mu.Lock()
	peers := make([]Manager, 0, len(q.peers))
	for _, p := range q.peers {
		peers = append(peers, p)
	}
	q.mu.Unlock()
	for _, p := range peers {
		if err := p.SendMessageToLocalRegion(body, async); err != nil {
			return err
		}
	}
	return nil
}

func (q *Local) DeleteQueue() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.visible = nil
	q.inflight = make(map[string]inflightEntry)
	q.updateDepthLocked()
	return nil
}

// Close marks the queue closed; further operations fail.
func (q *Local) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *Local) send(bodies [][]byte) error {
	msgs := make([]Message, 0, len(bodies))
	for _, b := range bodies {
		cp := make([]byte, len(b))
		copy(cp, b)
		msgs = append(msgs, Message{ID: uuid.Must(uuid.NewV7()), Body: cp})
	}
	return q.enqueueMessages(msgs)
}

// enqueueMessages appends pre-built messages (send path and WAL replay).
func (q *Local) enqueueMessages(msgs []Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.visible)+len(q.inflight)+len(msgs) > q.capacity {
		telemetry.QueueDropped.Add(float64(len(msgs)))
		return ErrQueueFull
	}
	q.visible = append(q.visible, msgs...)
	q.updateDepthLocked()
	return nil
}

func (q *Local) requeueExpiredLocked() {
	now := time.Now()
	for h, e := range q.inflight {
		if now.After(e.deadline) {
			delete(q.inflight, h)
			m := e.msg
			m.Handle = ""
			q.visible = append(q.visible, m)
		}
	}
	q.updateDepthLocked()
}

func (q *Local) updateDepthLocked() {
	telemetry.QueueDepth.WithLabelValues(q.region).Set(float64(len(q.visible)))
}
