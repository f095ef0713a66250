package asset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Index persists finished derivations so later builds can reuse payloads
// already in the object store.
type Index interface {
	// Lookup returns the derivation stored under key, or nil when absent.
	Lookup(ctx context.Context, key string) (*DerivedImage, error)
	// Record stores img under its key. An existing record is kept.
	Record(ctx context.Context, img *DerivedImage) error
	// PayloadHashes lists every payload hash referenced by a record.
	PayloadHashes(ctx context.Context) (map[string]bool, error)
	Close() error
}

// SQLiteIndex implements Index using SQLite.
type SQLiteIndex struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteIndex opens (or creates) the index database.
// Use ":memory:" for an in-memory index, or a file path for persistent storage.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection: every ":memory:" connection is a separate database
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db}
	if err := idx.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS derivations (
		cache_key TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_asset ON derivations(asset_id, content_hash);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteIndex) Lookup(ctx context.Context, key string) (*DerivedImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM derivations WHERE cache_key = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query derivation: %w", err)
	}
	var img DerivedImage
	if err := json.Unmarshal(payload, &img); err != nil {
		return nil, fmt.Errorf("decode derivation: %w", err)
	}
	return &img, nil
}

func (s *SQLiteIndex) Record(ctx context.Context, img *DerivedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("encode derivation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO derivations (cache_key, asset_id, content_hash, created_at, payload) VALUES (?, ?, ?, ?, ?)",
		img.Key, img.Source.AssetID, img.Source.ContentHash, time.Now().Unix(), payload,
	)
	if err != nil {
		return fmt.Errorf("insert derivation: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) PayloadHashes(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM derivations")
	if err != nil {
		return nil, fmt.Errorf("query derivations: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan derivation: %w", err)
		}
		var img DerivedImage
		if err := json.Unmarshal(payload, &img); err != nil {
			continue
		}
		out[img.PayloadHash] = true
		for _, v := range img.Variants {
			out[v.PayloadHash] = true
		}
	}
	return out, rows.Err()
}

// Prune removes records for asset revisions other than the current ones and
// returns how many were deleted. current maps asset id to its live content hash.
func (s *SQLiteIndex) Prune(ctx context.Context, current map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT cache_key, asset_id, content_hash FROM derivations")
	if err != nil {
		return 0, fmt.Errorf("query derivations: %w", err)
	}
	var stale []string
	for rows.Next() {
		var key, assetID, hash string
		if err := rows.Scan(&key, &assetID, &hash); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan derivation: %w", err)
		}
		if live, ok := current[assetID]; !ok || live != hash {
			stale = append(stale, key)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate derivations: %w", err)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	for _, key := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM derivations WHERE cache_key = ?", key); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("delete derivation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return len(stale), nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
