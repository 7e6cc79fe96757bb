package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
)

// The log lives in a single row so every save is one atomic overwrite.
const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS vault_log (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	sqliteUpsert = `INSERT INTO vault_log (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	sqliteSelect = `SELECT payload FROM vault_log WHERE id = 1`
	sqliteDelete = `DELETE FROM vault_log WHERE id = 1`
)

// SQLiteStore persists the vault log in a local sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary creates) the store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vault store: %w", err)
	}
	// One writer at a time; the log is a single-key value anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare vault schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the full persisted log, or ErrNotFound when nothing has
// been saved yet.
func (s *SQLiteStore) Load(ctx context.Context) ([]chat.Message, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, sqliteSelect).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load vault log: %w", err)
	}
	return decodeLog(payload)
}

// Save overwrites the persisted log with the supplied one.
func (s *SQLiteStore) Save(ctx context.Context, messages []chat.Message) error {
	payload, err := encodeLog(messages)
	if err != nil {
		return fmt.Errorf("encode vault log: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, string(payload), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save vault log: %w", err)
	}
	return nil
}

// Remove deletes the persisted log entirely.
func (s *SQLiteStore) Remove(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteDelete); err != nil {
		return fmt.Errorf("remove vault log: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
