package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store persists per-collection reconciliation state. Currently that is the
// last poster path applied to each collection, used to skip redundant image
// uploads between passes.
type Store struct {
	db *DB
}

// NewStore creates a store backed by an open, migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// PosterPath returns the last poster path applied to the collection, or ""
// when none has been recorded.
func (s *Store) PosterPath(ctx context.Context, collectionID string) (string, error) {
	var path string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT poster_path FROM collection_state WHERE collection_id = ?`,
		collectionID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query collection state: %w", err)
	}
	return path, nil
}

// SetPosterPath records the poster path applied to the collection.
func (s *Store) SetPosterPath(ctx context.Context, collectionID, path string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO collection_state (collection_id, poster_path, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(collection_id) DO UPDATE SET
		     poster_path = excluded.poster_path,
		     updated_at = CURRENT_TIMESTAMP`,
		collectionID, path,
	)
	if err != nil {
		return fmt.Errorf("failed to store collection state: %w", err)
	}
	return nil
}
