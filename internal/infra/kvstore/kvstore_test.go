package kvstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

// storeContract runs the domain.Store contract against any implementation:
// Get of an absent key is (nil, nil), Set round-trips, Set overwrites,
// Delete is idempotent.
func storeContract(t *testing.T, store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}) {
	t.Helper()

	got, err := store.Get("missing")
	if err != nil || got != nil {
		t.Fatalf("Get(missing) = (%v, %v), want (nil, nil)", got, err)
	}

	if err := store.Set("k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = store.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte(`{"a":1}`)) {
		t.Errorf("Get = %q, want original blob", got)
	}

	if err := store.Set("k", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite Set: %v", err)
	}
	got, _ = store.Get("k")
	if !bytes.Equal(got, []byte(`{"a":2}`)) {
		t.Errorf("Get after overwrite = %q", got)
	}

	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = store.Get("k")
	if err != nil || got != nil {
		t.Errorf("Get after delete = (%v, %v), want (nil, nil)", got, err)
	}
	if err := store.Delete("k"); err != nil {
		t.Errorf("Delete of absent key: %v", err)
	}
}

func TestMemoryContract(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestMemoryCopiesBlobs(t *testing.T) {
	m := NewMemory()
	blob := []byte("original")
	m.Set("k", blob)
	blob[0] = 'X'

	got, _ := m.Get("k")
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("stored blob = %q, caller mutation leaked in", got)
	}

	got[0] = 'Y'
	again, _ := m.Get("k")
	if !bytes.Equal(again, []byte("original")) {
		t.Errorf("stored blob = %q, returned slice aliases internal state", again)
	}
}

func TestSQLiteContract(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	storeContract(t, db)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Set("policy/limits", []byte(`{"daily_limit":2000}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("policy/limits")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte(`{"daily_limit":2000}`)) {
		t.Errorf("Get after reopen = %q", got)
	}
}
