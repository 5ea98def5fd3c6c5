package store

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/aurodev/usergrid/pkg/logger"
)

var db *pebble.DB
var dbPath string
var pendingWrites uint64
var walDisabled bool

// opens/creates pebble DB with WAL settings
func Open(path string, disableWAL bool) error {
	var err error
	opts := &pebble.Options{
		DisableWAL: disableWAL,
	}
	walDisabled = opts.DisableWAL

	if walDisabled {
		logger.Warn("durability_disabled", "durability", "pebble WAL disabled")
	}

	db, err = pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	return nil
}

// closes opened pebble DB
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	return nil
}

// returns true if DB is opened
func Ready() bool {
	return db != nil
}

// creates an indexed batch for read-modify-write mutation building
func NewBatch() (*pebble.Batch, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.NewIndexedBatch(), nil
}

// applies batch; sync forces fsync if true, else async write
func ApplyBatch(batch *pebble.Batch, sync bool) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Apply(batch, writeOpt(sync)); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	atomic.AddUint64(&pendingWrites, 1)
	return nil
}

// reads one key; returns (nil, false, nil) when absent
func Get(key string) ([]byte, bool, error) {
	if db == nil {
		return nil, false, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	if cerr := closer.Close(); cerr != nil {
		return nil, false, cerr
	}
	return out, true, nil
}

// writes a single key (admin/test paths; mutations go through batches)
func Set(key string, val []byte, sync bool) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Set([]byte(key), val, writeOpt(sync)); err != nil {
		return err
	}
	atomic.AddUint64(&pendingWrites, 1)
	return nil
}

// NewPrefixIter returns an iterator positioned at the first key with the
// given prefix. Callers must Close it and bound iteration with the prefix.
func NewPrefixIter(prefix string) (*pebble.Iterator, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	iter.SeekGE([]byte(prefix))
	return iter, nil
}

// HasPrefix reports whether at least one key with the prefix exists.
func HasPrefix(prefix string) (bool, error) {
	iter, err := NewPrefixIter(prefix)
	if err != nil {
		return false, err
	}
	defer iter.Close()
	if iter.Valid() && bytes.HasPrefix(iter.Key(), []byte(prefix)) {
		return true, iter.Error()
	}
	return false, iter.Error()
}

// increments pending write counter by n
func RecordWrite(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&pendingWrites, uint64(n))
}

// returns count of pending writes since last sync
func GetPendingWrites() uint64 {
	return atomic.LoadUint64(&pendingWrites)
}

// resets pending write counter
func ResetPendingWrites() {
	atomic.StoreUint64(&pendingWrites, 0)
}

// writes marker key, forces WAL fsync unless disabled (group-commit)
func ForceSync() error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if walDisabled {
		logger.Debug("pebble_force_sync_noop_wal_disabled")
		return nil
	}
	key := []byte("__usergrid_wal_sync_marker__")
	val := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := db.Set(key, val, writeOpt(true)); err != nil {
		logger.Error("pebble_force_sync_failed", "err", err)
		return err
	}
	return nil
}

// chooses sync/no-sync WriteOptions, always disables sync if WAL disabled
func writeOpt(requestSync bool) *pebble.WriteOptions {
	if requestSync && !walDisabled {
		return pebble.Sync
	}
	return pebble.NoSync
}
