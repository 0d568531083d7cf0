package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens the database and makes sure the table exists. A
// connection string of ":memory:" keeps everything in process.
func NewSQLiteStore(connectionString string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" is its own database
	db.SetMaxOpenConns(1)

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.createTable(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create session table: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTable() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS pending_images (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, id string, pending PendingImage) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending image: %w", err)
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_images WHERE expires_at <= ?", now.UnixMilli()); err != nil {
		return fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO pending_images (id, payload, expires_at) VALUES (?, ?, ?)",
		id, string(data), now.Add(s.ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store pending image: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (PendingImage, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT payload FROM pending_images WHERE id = ? AND expires_at > ?", id, s.now().UnixMilli())
	return scanPending(row)
}

func (s *SQLiteStore) Take(ctx context.Context, id string) (PendingImage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PendingImage{}, err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	row := tx.QueryRowContext(ctx,
		"SELECT payload FROM pending_images WHERE id = ? AND expires_at > ?", id, s.now().UnixMilli())
	pending, err := scanPending(row)
	if err != nil {
		return PendingImage{}, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_images WHERE id = ?", id); err != nil {
		return PendingImage{}, fmt.Errorf("failed to remove pending image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return PendingImage{}, err
	}
	return pending, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanPending(row *sql.Row) (PendingImage, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PendingImage{}, ErrNotFound
		}
		return PendingImage{}, err
	}
	var pending PendingImage
	if err := json.Unmarshal([]byte(payload), &pending); err != nil {
		return PendingImage{}, fmt.Errorf("failed to decode pending image: %w", err)
	}
	return pending, nil
}
