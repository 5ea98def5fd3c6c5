package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/logger"
)

// walRecord is the persisted form of one queued message.
type walRecord struct {
	ID   uuid.UUID `json:"id"`
	Body []byte    `json:"body"`
}

// Durable is a Local queue whose messages survive restarts: every send
// lands in a WAL before becoming visible, and commits delete the WAL
// entry. On open, uncommitted records are replayed into the queue.
type Durable struct {
	*Local
	wal *Log

	idxMu   sync.Mutex
	nextIdx uint64
	indexes map[uuid.UUID]uint64
}

// NewDurable opens the WAL at walPath and replays any uncommitted
// messages into a fresh local queue.
func NewDurable(region string, capacity int, walPath string, noSync bool) (*Durable, error) {
	wal, err := OpenLog(walPath, noSync)
	if err != nil {
		return nil, err
	}
	d := &Durable{
		Local:   NewLocal(region, capacity),
		wal:     wal,
		indexes: make(map[uuid.UUID]uint64),
	}

	var recovered []Message
	err = wal.Replay(func(idx uint64, data []byte) error {
		var rec walRecord
		if uerr := json.Unmarshal(data, &rec); uerr != nil {
			logger.Warn("queue_wal_record_skipped", "index", idx, "error", uerr)
			return nil
		}
		d.indexes[rec.ID] = idx
		if idx >= d.nextIdx {
			d.nextIdx = idx + 1
		}
		recovered = append(recovered, Message{ID: rec.ID, Body: rec.Body})
		return nil
	})
	if err != nil {
		wal.Close()
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	if len(recovered) > 0 {
		if eerr := d.Local.enqueueMessages(recovered); eerr != nil {
			wal.Close()
			return nil, fmt.Errorf("recover queue: %w", eerr)
		}
		logger.Info("queue_wal_recovered", "region", region, "messages", len(recovered))
	}
	return d, nil
}

func (d *Durable) SendMessages(bodies [][]byte) error {
	return d.send(bodies, true)
}

func (d *Durable) SendMessagesAsync(bodies [][]byte) error {
	return d.send(bodies, false)
}

func (d *Durable) SendMessageToLocalRegion(body []byte, async bool) error {
	if async {
		return d.SendMessagesAsync([][]byte{body})
	}
	return d.SendMessages([][]byte{body})
}

func (d *Durable) SendMessageToAllRegions(body []byte, async bool) error {
	if err := d.SendMessageToLocalRegion(body, async); err != nil {
		return err
	}
	d.Local.mu.Lock()
	peers := make([]Manager, 0, len(d.Local.peers))
	for _, p := range d.Local.peers {
		peers = append(peers, p)
	}
	d.Local.mu.Unlock()
	for _, p := range peers {
		if err := p.SendMessageToLocalRegion(body, async); err != nil {
			return err
		}
	}
	return nil
}

func (d *Durable) CommitMessage(m Message) error {
	return d.CommitMessages([]Message{m})
}

func (d *Durable) CommitMessages(ms []Message) error {
	if err := d.Local.CommitMessages(ms); err != nil {
		return err
	}
	d.idxMu.Lock()
	defer d.idxMu.Unlock()
	for _, m := range ms {
		idx, ok := d.indexes[m.ID]
		if !ok {
			continue
		}
		delete(d.indexes, m.ID)
		if err := d.wal.Delete(idx); err != nil {
			// queue state already advanced; redelivery after restart
			// is acceptable under at-least-once
			logger.Warn("queue_wal_delete_failed", "index", idx, "error", err)
		}
	}
	return nil
}

func (d *Durable) DeleteQueue() error {
	if err := d.Local.DeleteQueue(); err != nil {
		return err
	}
	d.idxMu.Lock()
	defer d.idxMu.Unlock()
	for id, idx := range d.indexes {
		delete(d.indexes, id)
		if err := d.wal.Delete(idx); err != nil {
			logger.Warn("queue_wal_delete_failed", "index", idx, "error", err)
		}
	}
	return nil
}

// Close closes queue and WAL.
func (d *Durable) Close() error {
	if err := d.Local.Close(); err != nil {
		return err
	}
	return d.wal.Close()
}

func (d *Durable) send(bodies [][]byte, sync bool) error {
	msgs := make([]Message, 0, len(bodies))
	d.idxMu.Lock()
	for _, b := range bodies {
		cp := make([]byte, len(b))
		copy(cp, b)
		m := Message{ID: uuid.Must(uuid.NewV7()), Body: cp}
		data, err := json.Marshal(walRecord{ID: m.ID, Body: m.Body})
		if err != nil {
			d.idxMu.Unlock()
			return fmt.Errorf("marshal wal record: %w", err)
		}
		idx := d.nextIdx
		d.nextIdx++
		if err := d.wal.Write(idx, data); err != nil {
			d.idxMu.Unlock()
			return fmt.Errorf("wal append: %w", err)
		}
		d.indexes[m.ID] = idx
		msgs = append(msgs, m)
	}
	d.idxMu.Unlock()
	if sync {
		if err := d.wal.Sync(); err != nil {
			return fmt.Errorf("wal sync: %w", err)
		}
	}
	if err := d.Local.enqueueMessages(msgs); err != nil {
		// compensate the WAL so rejected sends do not replay on reopen
		d.idxMu.Lock()
		for _, m := range msgs {
			idx, ok := d.indexes[m.ID]
			if !ok {
				continue
			}
			delete(d.indexes, m.ID)
			if derr := d.wal.Delete(idx); derr != nil {
				logger.Warn("queue_wal_delete_failed", "index", idx, "error", derr)
			}
		}
		d.idxMu.Unlock()
		return err
	}
	return nil
}
