package openai

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// VectorStoreParams carries the accepted fields when creating or updating a
// vector store.
type VectorStoreParams struct {
	Name        string
	FileIDs     []string
	ExpiresDays int
	Metadata    map[string]any
}

func (p VectorStoreParams) toRequest() openai.VectorStoreRequest {
	req := openai.VectorStoreRequest{
		Name:     p.Name,
		FileIDs:  p.FileIDs,
		Metadata: p.Metadata,
	}
	if p.ExpiresDays > 0 {
		req.ExpiresAfter = &openai.VectorStoreExpires{
			Anchor: "last_active_at",
			Days:   p.ExpiresDays,
		}
	}
	return req
}

// CreateVectorStore creates a remote vector store
func (s *Service) CreateVectorStore(ctx context.Context, params VectorStoreParams) (openai.VectorStore, error) {
	vs, err := s.client.CreateVectorStore(ctx, params.toRequest())
	return vs, wrapErr("vector_stores.create", err)
}

// RetrieveVectorStore fetches the current remote state of a vector store
func (s *Service) RetrieveVectorStore(ctx context.Context, vectorStoreID string) (openai.VectorStore, error) {
	if vectorStoreID == "" {
		return openai.VectorStore{}, missingArg("vector_store_id")
	}

	vs, err := s.client.RetrieveVectorStore(ctx, vectorStoreID)
	return vs, wrapErr("vector_stores.retrieve", err)
}

// ModifyVectorStore updates a vector store's mutable fields
func (s *Service) ModifyVectorStore(ctx context.Context, vectorStoreID string, params VectorStoreParams) (openai.VectorStore, error) {
	if vectorStoreID == "" {
		return openai.VectorStore{}, missingArg("vector_store_id")
	}

	vs, err := s.client.ModifyVectorStore(ctx, vectorStoreID, params.toRequest())
	return vs, wrapErr("vector_stores.modify", err)
}

// DeleteVectorStore removes a remote vector store
func (s *Service) DeleteVectorStore(ctx context.Context, vectorStoreID string) error {
	if vectorStoreID == "" {
		return missingArg("vector_store_id")
	}

	_, err := s.client.DeleteVectorStore(ctx, vectorStoreID)
	return wrapErr("vector_stores.delete", err)
}

// ListVectorStores returns the account's vector stores
func (s *Service) ListVectorStores(ctx context.Context, limit int) ([]openai.VectorStore, error) {
	pagination := openai.Pagination{}
	if limit > 0 {
		pagination.Limit = &limit
	}

	list, err := s.client.ListVectorStores(ctx, pagination)
	if err != nil {
		return nil, wrapErr("vector_stores.list", err)
	}
	return list.VectorStores, nil
}

// CreateVectorStoreFileBatch enqueues files for indexing into the store
func (s *Service) CreateVectorStoreFileBatch(ctx context.Context, vectorStoreID string, fileIDs []string) (openai.VectorStoreFileBatch, error) {
	if vectorStoreID == "" {
		return openai.VectorStoreFileBatch{}, missingArg("vector_store_id")
	}
	if len(fileIDs) == 0 {
		return openai.VectorStoreFileBatch{}, missingArg("file_ids")
	}

	batch, err := s.client.CreateVectorStoreFileBatch(ctx, vectorStoreID, openai.VectorStoreFileBatchRequest{
		FileIDs: fileIDs,
	})
	return batch, wrapErr("vector_store_file_batches.create", err)
}

// RetrieveVectorStoreFileBatch fetches the current state of a file batch
func (s *Service) RetrieveVectorStoreFileBatch(ctx context.Context, vectorStoreID, batchID string) (openai.VectorStoreFileBatch, error) {
	if vectorStoreID == "" {
		return openai.VectorStoreFileBatch{}, missingArg("vector_store_id")
	}
	if batchID == "" {
		return openai.VectorStoreFileBatch{}, missingArg("batch_id")
	}

	batch, err := s.client.RetrieveVectorStoreFileBatch(ctx, vectorStoreID, batchID)
	return batch, wrapErr("vector_store_file_batches.retrieve", err)
}
