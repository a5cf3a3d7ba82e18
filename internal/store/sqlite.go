// Package store persists managed-order metadata across process restarts
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"futures_orchestrator/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS managed_orders (
	key        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore implements core.MetadataStore on a single SQLite file.
// Records are JSON blobs keyed by instrument-side; WAL mode keeps the
// file crash-consistent.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the store at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put inserts or replaces the record for the order's key
func (s *SQLiteStore) Put(ctx context.Context, order core.ManagedOrder) error {
	if order.Key == "" {
		return fmt.Errorf("managed order has empty key")
	}

	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	query := `INSERT INTO managed_orders (key, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		order.Key, string(data), order.CreatedAt.UnixNano(), order.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write order %s: %w", order.Key, err)
	}
	return nil
}

// Get returns the record for a key, with found=false when absent
func (s *SQLiteStore) Get(ctx context.Context, key string) (core.ManagedOrder, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM managed_orders WHERE key = ?`, key).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ManagedOrder{}, false, nil
		}
		return core.ManagedOrder{}, false, fmt.Errorf("failed to read order %s: %w", key, err)
	}

	var order core.ManagedOrder
	if err := json.Unmarshal([]byte(data), &order); err != nil {
		return core.ManagedOrder{}, false, fmt.Errorf("failed to unmarshal order %s: %w", key, err)
	}
	return order, true, nil
}

// List returns all records ordered by key
func (s *SQLiteStore) List(ctx context.Context) ([]core.ManagedOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM managed_orders ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []core.ManagedOrder
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		var order core.ManagedOrder
		if err := json.Unmarshal([]byte(data), &order); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// Delete removes the record for a key. Deleting a missing key is not an
// error so prunes stay idempotent.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM managed_orders WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
