package queue

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

var (
	ErrWALClosed   = fmt.Errorf("wal closed")
	ErrWALNotFound = fmt.Errorf("wal entry not found")
)

// Log is a write-ahead log over a dedicated pebble instance; entries are
// keyed by zero-padded index so scans walk them in order.
type Log struct {
	mu     sync.RWMutex
	db     *pebble.DB
	path   string
	noSync bool
	closed bool
}

// OpenLog opens (or creates) a WAL at path. noSync trades per-write
// fsync for throughput; Close flushes the memtable, so a clean
// shutdown still persists every entry and only a crash loses the tail.
func OpenLog(path string, noSync bool) (*Log, error) {
	db, err := pebble.Open(path, &pebble.Options{DisableWAL: noSync})
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	return &Log{db: db, path: path, noSync: noSync}, nil
}

// Close flushes and closes the log.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.noSync {
		// pebble's own WAL is disabled, so the memtable must be
		// flushed or a clean shutdown drops unflushed entries
		if err := l.db.Flush(); err != nil {
			l.db.Close()
			return fmt.Errorf("flush wal: %w", err)
		}
	}
	return l.db.Close()
}

// Write an entry at the given index.
func (l *Log) Write(index uint64, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrWALClosed
	}
	return l.db.Set([]byte(walKey(index)), data, l.writeOpts())
}

// Read the entry at index.
func (l *Log) Read(index uint64) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrWALClosed
	}
	data, closer, err := l.db.Get([]byte(walKey(index)))
	if err == pebble.ErrNotFound {
		return nil, ErrWALNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	if cerr := closer.Close(); cerr != nil {
		return nil, cerr
	}
	return out, nil
}

// Delete removes one entry (committed message ack).
func (l *Log) Delete(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrWALClosed
	}
	return l.db.Delete([]byte(walKey(index)), l.writeOpts())
}

// Replay walks all entries in index order.
func (l *Log) Replay(fn func(index uint64, data []byte) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrWALClosed
	}
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("00000000000000000000"),
		UpperBound: []byte("99999999999999999999"),
	})
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != 20 {
			continue
		}
		idx, perr := strconv.ParseUint(string(key), 10, 64)
		if perr != nil {
			continue
		}
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		if err := fn(idx, val); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastIndex returns the index of the last entry, 0 when empty.
func (l *Log) LastIndex() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, ErrWALClosed
	}
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("00000000000000000000"),
		UpperBound: []byte("99999999999999999999"),
	})
	if err != nil {
		return 0, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()
	var last uint64
	if iter.Last() {
		for ; iter.Valid(); iter.Prev() {
			key := iter.Key()
			if len(key) != 20 {
				continue
			}
			if seq, perr := strconv.ParseUint(string(key), 10, 64); perr == nil {
				last = seq
				break
			}
		}
	}
	return last, iter.Error()
}

// Sync forces an fsync via a synced marker write.
func (l *Log) Sync() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrWALClosed
	}
	return l.db.Set([]byte("sync:marker"), []byte(time.Now().Format(time.RFC3339Nano)), pebble.Sync)
}

func (l *Log) writeOpts() *pebble.WriteOptions {
	if l.noSync {
		return pebble.NoSync
	}
	return pebble.Sync
}

func walKey(index uint64) string {
	return fmt.Sprintf("%020d", index)
}
