package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Artifact purposes. Images get their own discriminator so clients can
// render them inline; everything else is generic content.
const (
	PurposeImage   = "image"
	PurposeContent = "content"
)

// Artifact is a locally materialized copy of a file produced during a run,
// keyed by the remote file id plus the owning user.
type Artifact struct {
	FileID      string `db:"file_id"`
	OwnerID     string `db:"owner_id"`
	Filename    string `db:"filename"`
	ContentType string `db:"content_type"`
	Purpose     string `db:"purpose"`
	Data        []byte `db:"data"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

// UpsertArtifact creates or replaces the artifact for (file_id, owner_id).
// Re-materializing an existing artifact overwrites it in place.
func (s *Store) UpsertArtifact(ctx context.Context, a Artifact) error {
	now := time.Now().Unix()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO artifacts (file_id, owner_id, filename, content_type, purpose, data, created_at, updated_at)
		VALUES (:file_id, :owner_id, :filename, :content_type, :purpose, :data, :created_at, :updated_at)
		ON CONFLICT (file_id, owner_id) DO UPDATE SET
			filename = excluded.filename,
			content_type = excluded.content_type,
			purpose = excluded.purpose,
			data = excluded.data,
			updated_at = excluded.updated_at`, a)
	if err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

// GetArtifact returns one artifact for the given owner
func (s *Store) GetArtifact(ctx context.Context, fileID, ownerID string) (*Artifact, error) {
	var a Artifact
	err := s.db.GetContext(ctx, &a,
		`SELECT * FROM artifacts WHERE file_id = ? AND owner_id = ?`, fileID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return &a, nil
}

// ListArtifacts returns the owner's artifacts without their payloads,
// newest first.
func (s *Store) ListArtifacts(ctx context.Context, ownerID string) ([]Artifact, error) {
	var out []Artifact
	err := s.db.SelectContext(ctx, &out, `
		SELECT file_id, owner_id, filename, content_type, purpose, x'' AS data, created_at, updated_at
		FROM artifacts WHERE owner_id = ? ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return out, nil
}

// CountArtifacts reports how many artifacts the owner has
func (s *Store) CountArtifacts(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM artifacts WHERE owner_id = ?`, ownerID); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, nil
}
