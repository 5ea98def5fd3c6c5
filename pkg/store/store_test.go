package store

import (
	"bytes"
	"testing"
)

func openTemp(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir(), false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func TestGetSetAbsent(t *testing.T) {
	openTemp(t)

	if _, ok, err := Get("missing"); err != nil || ok {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}
	if err := Set("k", []byte("v"), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := Get("k")
	if err != nil || !ok || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("Get: %q ok=%v err=%v", v, ok, err)
	}
}

func TestBatchApply(t *testing.T) {
	openTemp(t)

	b, err := NewBatch()
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if err := b.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	// nothing lands until the batch applies
	if _, ok, _ := Get("a"); ok {
		t.Fatalf("batch leaked before apply")
	}
	if err := ApplyBatch(b, false); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, ok, _ := Get(k); !ok {
			t.Fatalf("key %s missing after apply", k)
		}
	}
}

func TestHasPrefix(t *testing.T) {
	openTemp(t)

	if err := Set("p:x:1", []byte("v"), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err := HasPrefix("p:x:")
	if err != nil || !ok {
		t.Fatalf("HasPrefix present: ok=%v err=%v", ok, err)
	}
	ok, err = HasPrefix("p:y:")
	if err != nil || ok {
		t.Fatalf("HasPrefix absent: ok=%v err=%v", ok, err)
	}
}

func TestNotOpened(t *testing.T) {
	// no Open in this test; the store must refuse operations
	if db != nil {
		t.Skip("store already open")
	}
	if _, _, err := Get("k"); err == nil {
		t.Fatalf("expected error before Open")
	}
	if err := Set("k", nil, false); err == nil {
		t.Fatalf("expected error before Open")
	}
	if Ready() {
		t.Fatalf("Ready before Open")
	}
}
