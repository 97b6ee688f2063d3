// Package storage provides the persistent swap store spec.md §6 describes:
// a map from payment_hash_hex to a serialized swap record, versioned, with
// append-only migrations. Uses SQLite via mattn/go-sqlite3, adapted from the
// teacher's connection-pool and WAL-mode setup.
package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// CurrentSchemaVersion is the schema version new records are written with.
const CurrentSchemaVersion = 1

// Storage provides persistent storage for swap records.
type Storage struct {
	db     *sql.DB
	dbPath string
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New opens (creating if necessary) the swap store database.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "swapd.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite supports exactly one writer; serialize through a single conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection, for components (e.g. a
// migration tool) that need raw SQL access.
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS swaps (
		payment_hash_hex TEXT PRIMARY KEY,
		direction         TEXT NOT NULL,
		chain_id          INTEGER NOT NULL,
		state             TEXT NOT NULL,
		schema_version    INTEGER NOT NULL,
		data              TEXT NOT NULL, -- JSON-serialized Swap record; big integers are stringified decimal
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_swaps_direction_state ON swaps(direction, state);
	CREATE INDEX IF NOT EXISTS idx_swaps_updated ON swaps(updated_at);

	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT,
		updated_at INTEGER
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// Record is one persisted swap: the envelope storage reasons about, with
// the actual state machine data opaque in Data (spec.md §6: "unknown fields
// are preserved" — callers unmarshal Data into their direction-specific type).
type Record struct {
	PaymentHash   [32]byte
	Direction     string
	ChainID       uint64
	State         string
	SchemaVersion int
	Data          json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func paymentHashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// Put upserts a swap record, always writing CurrentSchemaVersion.
func (s *Storage) Put(ctx context.Context, r *Record) error {
	now := time.Now().Unix()
	createdAt := r.CreatedAt.Unix()
	if r.CreatedAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO swaps (payment_hash_hex, direction, chain_id, state, schema_version, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(payment_hash_hex) DO UPDATE SET
			direction = excluded.direction,
			chain_id = excluded.chain_id,
			state = excluded.state,
			schema_version = excluded.schema_version,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, paymentHashHex(r.PaymentHash), r.Direction, r.ChainID, r.State, CurrentSchemaVersion, string(r.Data), createdAt, now)
	return err
}

// Get loads a swap record by payment hash, applying any pending migration.
func (s *Storage) Get(ctx context.Context, paymentHash [32]byte) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payment_hash_hex, direction, chain_id, state, schema_version, data, created_at, updated_at
		FROM swaps WHERE payment_hash_hex = ?
	`, paymentHashHex(paymentHash))
	r, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	return migrate(r), nil
}

// ListByDirectionState lists swaps in a direction whose state is one of
// states, oldest-updated first — the shape processPastSwaps (spec.md §5)
// scans on every tick.
func (s *Storage) ListByDirectionState(ctx context.Context, direction string, states []string) ([]*Record, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(states)*2)
	args := make([]any, 0, len(states)+1)
	args = append(args, direction)
	for i, st := range states {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, st)
	}
	query := fmt.Sprintf(`
		SELECT payment_hash_hex, direction, chain_id, state, schema_version, data, created_at, updated_at
		FROM swaps WHERE direction = ? AND state IN (%s)
		ORDER BY updated_at ASC
	`, string(placeholders))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, migrate(r))
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	var (
		hashHex   string
		direction string
		chainID   uint64
		state     string
		version   int
		data      string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&hashHex, &direction, &chainID, &state, &version, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(hashHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("storage: corrupt payment_hash_hex %q", hashHex)
	}
	r := &Record{
		Direction:     direction,
		ChainID:       chainID,
		State:         state,
		SchemaVersion: version,
		Data:          json.RawMessage(data),
		CreatedAt:     time.Unix(createdAt, 0),
		UpdatedAt:     time.Unix(updatedAt, 0),
	}
	copy(r.PaymentHash[:], raw)
	return r, nil
}

// legacyToBtcStateNames maps the pre-v1 numeric ToBtc state encoding to the
// canonical string enumeration documented in spec.md §4.4 and §9's v0->v1
// migration note. Append-only: a future v2 adds here, never rewrites v1.
var legacyToBtcStateNames = map[string]string{
	"0": "CREATED",
	"1": "COMMITED",
	"2": "BTC_SENDING",
	"3": "BTC_SENT",
	"4": "CLAIMED",
	"5": "REFUNDED",
}

// migrate applies append-only schema migrations to a record read from disk.
func migrate(r *Record) *Record {
	if r.SchemaVersion < 1 && r.Direction == "to-btc-onchain" {
		if canonical, ok := legacyToBtcStateNames[r.State]; ok {
			r.State = canonical
		}
		r.SchemaVersion = 1
	}
	return r
}
