// Package vectorstore manages remote vector stores on behalf of a user and
// keeps a local mirror of their state, reconciled on every remote read.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	provider "github.com/loom-ai/loom/internal/infrastructure/openai"
	"github.com/loom-ai/loom/internal/store"
)

// Client is the slice of the provider service the vector store layer uses.
type Client interface {
	CreateVectorStore(ctx context.Context, params provider.VectorStoreParams) (openai.VectorStore, error)
	RetrieveVectorStore(ctx context.Context, vectorStoreID string) (openai.VectorStore, error)
	ModifyVectorStore(ctx context.Context, vectorStoreID string, params provider.VectorStoreParams) (openai.VectorStore, error)
	DeleteVectorStore(ctx context.Context, vectorStoreID string) error
	ListVectorStores(ctx context.Context, limit int) ([]openai.VectorStore, error)
	CreateVectorStoreFileBatch(ctx context.Context, vectorStoreID string, fileIDs []string) (openai.VectorStoreFileBatch, error)
	RetrieveVectorStoreFileBatch(ctx context.Context, vectorStoreID, batchID string) (openai.VectorStoreFileBatch, error)
}

// Service wraps remote vector store operations with local mirroring.
type Service struct {
	store *store.Store
}

// NewService creates a vector store service backed by the given store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Create creates a remote vector store and records it locally.
func (s *Service) Create(ctx context.Context, client Client, ownerID string, params provider.VectorStoreParams) (openai.VectorStore, error) {
	vs, err := client.CreateVectorStore(ctx, params)
	if err != nil {
		return openai.VectorStore{}, err
	}
	if err := s.store.UpsertVectorStore(ctx, mirrorRecord(vs, ownerID)); err != nil {
		return openai.VectorStore{}, fmt.Errorf("mirror vector store %s: %w", vs.ID, err)
	}
	return vs, nil
}

// Retrieve fetches the remote state and refreshes the mirror.
func (s *Service) Retrieve(ctx context.Context, client Client, ownerID, vectorStoreID string) (openai.VectorStore, error) {
	vs, err := client.RetrieveVectorStore(ctx, vectorStoreID)
	if err != nil {
		return openai.VectorStore{}, err
	}
	if err := s.store.UpsertVectorStore(ctx, mirrorRecord(vs, ownerID)); err != nil {
		log.Warn().Str("vector_store_id", vs.ID).Err(err).Msg("Failed to refresh vector store mirror")
	}
	return vs, nil
}

// Modify updates the remote store's mutable fields and refreshes the mirror.
func (s *Service) Modify(ctx context.Context, client Client, ownerID, vectorStoreID string, params provider.VectorStoreParams) (openai.VectorStore, error) {
	vs, err := client.ModifyVectorStore(ctx, vectorStoreID, params)
	if err != nil {
		return openai.VectorStore{}, err
	}
	if err := s.store.UpsertVectorStore(ctx, mirrorRecord(vs, ownerID)); err != nil {
		log.Warn().Str("vector_store_id", vs.ID).Err(err).Msg("Failed to refresh vector store mirror")
	}
	return vs, nil
}

// List returns the remote stores and reconciles the mirror: every listed
// store is upserted and local records the remote no longer knows are pruned.
func (s *Service) List(ctx context.Context, client Client, ownerID string, limit int) ([]openai.VectorStore, error) {
	stores, err := client.ListVectorStores(ctx, limit)
	if err != nil {
		return nil, err
	}

	keep := make([]string, 0, len(stores))
	for _, vs := range stores {
		keep = append(keep, vs.ID)
		if err := s.store.UpsertVectorStore(ctx, mirrorRecord(vs, ownerID)); err != nil {
			log.Warn().Str("vector_store_id", vs.ID).Err(err).Msg("Failed to refresh vector store mirror")
		}
	}
	if err := s.store.PruneVectorStores(ctx, ownerID, keep); err != nil {
		log.Warn().Str("owner_id", ownerID).Err(err).Msg("Failed to prune vector store mirror")
	}
	return stores, nil
}

// Delete removes the remote store and its mirror record.
func (s *Service) Delete(ctx context.Context, client Client, ownerID, vectorStoreID string) error {
	if err := client.DeleteVectorStore(ctx, vectorStoreID); err != nil {
		return err
	}
	if err := s.store.DeleteVectorStore(ctx, vectorStoreID, ownerID); err != nil && err != store.ErrNotFound {
		log.Warn().Str("vector_store_id", vectorStoreID).Err(err).Msg("Failed to drop vector store mirror")
	}
	return nil
}

// CreateFileBatch enqueues files for indexing and marks the mirror as
// in progress.
func (s *Service) CreateFileBatch(ctx context.Context, client Client, ownerID, vectorStoreID string, fileIDs []string) (openai.VectorStoreFileBatch, error) {
	batch, err := client.CreateVectorStoreFileBatch(ctx, vectorStoreID, fileIDs)
	if err != nil {
		return openai.VectorStoreFileBatch{}, err
	}

	if rec, err := s.store.GetVectorStore(ctx, vectorStoreID, ownerID); err == nil {
		rec.Status = batch.Status
		if err := s.store.UpsertVectorStore(ctx, *rec); err != nil {
			log.Warn().Str("vector_store_id", vectorStoreID).Err(err).Msg("Failed to update vector store mirror")
		}
	}
	return batch, nil
}

// mirrorRecord converts a remote vector store into its local mirror row.
func mirrorRecord(vs openai.VectorStore, ownerID string) store.VectorStore {
	rec := store.VectorStore{
		ID:         vs.ID,
		OwnerID:    ownerID,
		Name:       vs.Name,
		UsageBytes: int64(vs.UsageBytes),
		Status:     vs.Status,
		CreatedAt:  vs.CreatedAt,
	}
	if b, err := json.Marshal(vs.FileCounts); err == nil {
		rec.FileCounts = string(b)
	}
	if vs.ExpiresAfter != nil {
		if b, err := json.Marshal(vs.ExpiresAfter); err == nil {
			rec.ExpiresAfter = sql.NullString{String: string(b), Valid: true}
		}
	}
	if vs.ExpiresAt != nil {
		rec.ExpiresAt = sql.NullInt64{Int64: int64(*vs.ExpiresAt), Valid: true}
	}
	if len(vs.Metadata) > 0 {
		if b, err := json.Marshal(vs.Metadata); err == nil {
			rec.Metadata = sql.NullString{String: string(b), Valid: true}
		}
	}
	return rec
}
