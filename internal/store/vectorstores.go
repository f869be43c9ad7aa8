package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// VectorStore mirrors a remote vector store record. JSON-shaped fields
// (file_counts, expires_after, metadata) are stored serialized.
type VectorStore struct {
	ID           string         `db:"id"`
	OwnerID      string         `db:"owner_id"`
	Name         string         `db:"name"`
	UsageBytes   int64          `db:"usage_bytes"`
	Status       string         `db:"status"`
	FileCounts   string         `db:"file_counts"`
	ExpiresAfter sql.NullString `db:"expires_after"`
	ExpiresAt    sql.NullInt64  `db:"expires_at"`
	LastActiveAt sql.NullInt64  `db:"last_active_at"`
	Metadata     sql.NullString `db:"metadata"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

// UpsertVectorStore creates or updates the mirror record for (id, owner_id)
func (s *Store) UpsertVectorStore(ctx context.Context, vs VectorStore) error {
	now := time.Now().Unix()
	if vs.CreatedAt == 0 {
		vs.CreatedAt = now
	}
	vs.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO vector_stores (id, owner_id, name, usage_bytes, status, file_counts,
			expires_after, expires_at, last_active_at, metadata, created_at, updated_at)
		VALUES (:id, :owner_id, :name, :usage_bytes, :status, :file_counts,
			:expires_after, :expires_at, :last_active_at, :metadata, :created_at, :updated_at)
		ON CONFLICT (id, owner_id) DO UPDATE SET
			name = excluded.name,
			usage_bytes = excluded.usage_bytes,
			status = excluded.status,
			file_counts = excluded.file_counts,
			expires_after = excluded.expires_after,
			expires_at = excluded.expires_at,
			last_active_at = excluded.last_active_at,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`, vs)
	if err != nil {
		return fmt.Errorf("upsert vector store: %w", err)
	}
	return nil
}

// GetVectorStore returns the mirror record for the given owner
func (s *Store) GetVectorStore(ctx context.Context, id, ownerID string) (*VectorStore, error) {
	var vs VectorStore
	err := s.db.GetContext(ctx, &vs,
		`SELECT * FROM vector_stores WHERE id = ? AND owner_id = ?`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vector store: %w", err)
	}
	return &vs, nil
}

// ListVectorStores returns the owner's mirror records, newest first
func (s *Store) ListVectorStores(ctx context.Context, ownerID string) ([]VectorStore, error) {
	var out []VectorStore
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM vector_stores WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list vector stores: %w", err)
	}
	return out, nil
}

// DeleteVectorStore removes the mirror record
func (s *Store) DeleteVectorStore(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_stores WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete vector store: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneVectorStores deletes the owner's mirror records whose ids are not in
// keep. Used after a remote list to reconcile deletions made elsewhere.
func (s *Store) PruneVectorStores(ctx context.Context, ownerID string, keep []string) error {
	if len(keep) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM vector_stores WHERE owner_id = ?`, ownerID)
		if err != nil {
			return fmt.Errorf("prune vector stores: %w", err)
		}
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]any, 0, len(keep)+1)
	args = append(args, ownerID)
	for _, id := range keep {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_stores WHERE owner_id = ? AND id NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("prune vector stores: %w", err)
	}
	return nil
}
