package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "swapd-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "swapd-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tmpDir, "swapd.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.DB() == nil {
		t.Error("DB() returned nil")
	}
}

func TestNewWithTildeExpansion(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := expandPath("~/.test")
	expected := filepath.Join(home, ".test")
	if expanded != expected {
		t.Errorf("expandPath(~/.test) = %s, want %s", expanded, expected)
	}
}

func TestPutAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hash := sha256.Sum256([]byte("payment-one"))
	data, _ := json.Marshal(map[string]any{"amount_sats": "100000"})

	record := &Record{
		PaymentHash: hash,
		Direction:   "from-btc-onchain",
		ChainID:     1337,
		State:       "CREATED",
		Data:        data,
	}
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "CREATED" || got.Direction != "from-btc-onchain" || got.ChainID != 1337 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if string(got.Data) != string(data) {
		t.Fatalf("Data = %s, want %s", got.Data, data)
	}
	if got.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("SchemaVersion = %d, want %d", got.SchemaVersion, CurrentSchemaVersion)
	}
}

func TestPutIsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	hash := sha256.Sum256([]byte("payment-two"))

	first := &Record{PaymentHash: hash, Direction: "from-btc-onchain", ChainID: 1, State: "CREATED", Data: json.RawMessage(`{}`)}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put (first): %v", err)
	}

	second := &Record{PaymentHash: hash, Direction: "from-btc-onchain", ChainID: 1, State: "COMMITED", Data: json.RawMessage(`{"x":1}`)}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put (second): %v", err)
	}

	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "COMMITED" {
		t.Fatalf("State = %s, want COMMITED (upsert should overwrite)", got.State)
	}
}

func TestListByDirectionState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, state := range []string{"CREATED", "COMMITED", "CLAIMED", "CREATED"} {
		hash := sha256.Sum256([]byte{byte(i)})
		r := &Record{PaymentHash: hash, Direction: "from-btc-onchain", ChainID: 1, State: state, Data: json.RawMessage(`{}`)}
		if err := store.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	unfinished, err := store.ListByDirectionState(ctx, "from-btc-onchain", []string{"CREATED", "COMMITED"})
	if err != nil {
		t.Fatalf("ListByDirectionState: %v", err)
	}
	if len(unfinished) != 3 {
		t.Fatalf("got %d records, want 3", len(unfinished))
	}
}

func TestMigrateLegacyToBtcState(t *testing.T) {
	r := &Record{Direction: "to-btc-onchain", State: "2", SchemaVersion: 0}
	migrated := migrate(r)
	if migrated.State != "BTC_SENDING" {
		t.Fatalf("migrated State = %s, want BTC_SENDING", migrated.State)
	}
	if migrated.SchemaVersion != 1 {
		t.Fatalf("migrated SchemaVersion = %d, want 1", migrated.SchemaVersion)
	}
}

func TestMigrateLeavesCurrentVersionAlone(t *testing.T) {
	r := &Record{Direction: "to-btc-onchain", State: "BTC_SENDING", SchemaVersion: 1}
	migrated := migrate(r)
	if migrated.State != "BTC_SENDING" {
		t.Fatalf("unexpected mutation of already-current record: %s", migrated.State)
	}
}
