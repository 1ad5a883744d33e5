// Package sqlite is the relational context store. Atomicity of consume
// rests on a single conditional UPDATE with an affected-row check, so
// the backend stays correct across processes sharing one database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/proofbind/proofbind/model"
	"github.com/proofbind/proofbind/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite returns SQLITE_BUSY under concurrent writers;
	// a single pooled connection serializes them ahead of the driver.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS contexts (
	id TEXT PRIMARY KEY,
	binding TEXT NOT NULL,
	mode TEXT NOT NULL,
	issued_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	nonce TEXT,
	consumed_at INTEGER,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_contexts_expires_at ON contexts(expires_at);
`,
	// Future migrations go here.
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) Create(ctx context.Context, binding string, ttl time.Duration, mode model.Mode, metadata map[string]string) (model.Context, error) {
	if ttl <= 0 {
		return model.Context{}, store.ErrInvalidTTL
	}
	id, err := store.NewID()
	if err != nil {
		return model.Context{}, err
	}
	nonce := ""
	if mode.RequiresNonce() {
		if nonce, err = store.NewNonce(); err != nil {
			return model.Context{}, err
		}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return model.Context{}, err
	}
	now := time.Now()
	rec := model.Context{
		ID:        id,
		Binding:   binding,
		Mode:      mode,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Nonce:     nonce,
		Metadata:  metadata,
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO contexts (id, binding, mode, issued_at, expires_at, nonce, consumed_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, NULL, ?)
`, rec.ID, rec.Binding, string(rec.Mode), rec.IssuedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(), nullIfEmpty(rec.Nonce), string(meta))
	if err != nil {
		return model.Context{}, err
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Context, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, binding, mode, issued_at, expires_at, nonce, consumed_at, metadata
FROM contexts
WHERE id = ? AND expires_at > ?
`, id, time.Now().UnixMilli())
	return scanContext(row)
}

func (s *Store) Consume(ctx context.Context, id string, now time.Time) (store.Outcome, error) {
	// The conditional update is the whole replay barrier: whichever
	// caller's UPDATE lands first flips the row, everyone else
	// affects zero rows.
	res, err := s.db.ExecContext(ctx, `
UPDATE contexts
SET consumed_at = ?
WHERE id = ? AND consumed_at IS NULL AND expires_at > ?
`, now.UnixMilli(), id, now.UnixMilli())
	if err != nil {
		return store.Missing, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Missing, err
	}
	if n == 1 {
		return store.Consumed, nil
	}

	// Zero rows: classify. This read only distinguishes the losing
	// outcomes; atomicity was already decided by the update above.
	var consumed sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
SELECT consumed_at FROM contexts WHERE id = ? AND expires_at > ?
`, id, now.UnixMilli())
	if err := row.Scan(&consumed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Missing, nil
		}
		return store.Missing, err
	}
	if consumed.Valid {
		return store.AlreadyConsumed, nil
	}
	return store.Missing, nil
}

func (s *Store) Cleanup(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM contexts WHERE expires_at <= ? OR consumed_at IS NOT NULL
`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanContext(row *sql.Row) (model.Context, error) {
	var (
		rec      model.Context
		mode     string
		issued   int64
		expires  int64
		nonce    sql.NullString
		consumed sql.NullInt64
		meta     sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Binding, &mode, &issued, &expires, &nonce, &consumed, &meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Context{}, store.ErrNotFound
		}
		return model.Context{}, err
	}
	rec.Mode = model.Mode(mode)
	rec.IssuedAt = time.UnixMilli(issued)
	rec.ExpiresAt = time.UnixMilli(expires)
	if nonce.Valid {
		rec.Nonce = nonce.String
	}
	if consumed.Valid {
		at := time.UnixMilli(consumed.Int64)
		rec.ConsumedAt = &at
	}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		m := map[string]string{}
		if err := json.Unmarshal([]byte(meta.String), &m); err != nil {
			return model.Context{}, err
		}
		rec.Metadata = m
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
