package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/loom-ai/loom/internal/config"
	"github.com/loom-ai/loom/internal/store"
)

// Snapshot is one emission of a polling loop, serialized as-is onto the
// status stream.
type Snapshot map[string]any

const (
	statusInProgress = "in_progress"
	statusCompleted  = "completed"
	statusExpired    = "expired"
	statusFailed     = "failed"
	statusCancelled  = "cancelled"
)

func errorSnapshot(message string) Snapshot {
	return Snapshot{"status": "error", "message": message}
}

func timeoutSnapshot() Snapshot {
	return Snapshot{"status": "timeout", "message": "Polling timed out"}
}

// PollStatus reports the vector store's status once per polling interval
// until it reaches a terminal state or the timeout elapses. The channel is
// closed after the terminal snapshot. Poll errors stop the loop with an
// error snapshot; there is no retry.
func (s *Service) PollStatus(ctx context.Context, client Client, ownerID, vectorStoreID string) <-chan Snapshot {
	out := make(chan Snapshot)
	interval := config.GetPollingInterval()
	deadline := time.Now().Add(config.GetPollingTimeout())

	go func() {
		defer close(out)
		for {
			if time.Now().After(deadline) {
				emit(ctx, out, timeoutSnapshot())
				return
			}
			vs, err := client.RetrieveVectorStore(ctx, vectorStoreID)
			if err != nil {
				emit(ctx, out, errorSnapshot(err.Error()))
				return
			}

			if vs.Status == statusCompleted || vs.Status == statusExpired {
				if vs.Status == statusCompleted {
					if err := s.persistCompleted(ctx, vs, ownerID); err != nil {
						emit(ctx, out, errorSnapshot(err.Error()))
						return
					}
				}
				emit(ctx, out, storeSnapshot(vs))
				return
			}

			if !emit(ctx, out, storeSnapshot(vs)) {
				return
			}
			if !sleep(ctx, interval) {
				return
			}
		}
	}()
	return out
}

// PollBatchStatus reports a file batch's status once per polling interval
// until it completes, fails, is cancelled, or the timeout elapses. A
// completed batch also refreshes the vector store's mirror record.
func (s *Service) PollBatchStatus(ctx context.Context, client Client, ownerID, vectorStoreID, batchID string) <-chan Snapshot {
	out := make(chan Snapshot)
	interval := config.GetPollingInterval()
	deadline := time.Now().Add(config.GetPollingTimeout())

	go func() {
		defer close(out)
		for {
			if time.Now().After(deadline) {
				emit(ctx, out, timeoutSnapshot())
				return
			}
			batch, err := client.RetrieveVectorStoreFileBatch(ctx, vectorStoreID, batchID)
			if err != nil {
				emit(ctx, out, errorSnapshot(err.Error()))
				return
			}

			if batch.Status == statusCompleted || batch.Status == statusFailed || batch.Status == statusCancelled {
				if batch.Status == statusCompleted {
					s.refreshMirror(ctx, client, ownerID, vectorStoreID)
				}
				emit(ctx, out, batchSnapshot(batch))
				return
			}

			if !emit(ctx, out, batchSnapshot(batch)) {
				return
			}
			if !sleep(ctx, interval) {
				return
			}
		}
	}()
	return out
}

// persistCompleted refreshes the mirror for a store that finished indexing.
// A completed store with no local record is treated as an error: it means
// the store was created outside this service for another owner.
func (s *Service) persistCompleted(ctx context.Context, vs openai.VectorStore, ownerID string) error {
	if _, err := s.store.GetVectorStore(ctx, vs.ID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("vector store %s has no local record", vs.ID)
		}
		return err
	}
	return s.store.UpsertVectorStore(ctx, mirrorRecord(vs, ownerID))
}

func (s *Service) refreshMirror(ctx context.Context, client Client, ownerID, vectorStoreID string) {
	vs, err := client.RetrieveVectorStore(ctx, vectorStoreID)
	if err != nil {
		log.Warn().Str("vector_store_id", vectorStoreID).Err(err).Msg("Failed to refresh mirror after batch completion")
		return
	}
	if err := s.store.UpsertVectorStore(ctx, mirrorRecord(vs, ownerID)); err != nil {
		log.Warn().Str("vector_store_id", vectorStoreID).Err(err).Msg("Failed to refresh vector store mirror")
	}
}

func storeSnapshot(vs openai.VectorStore) Snapshot {
	return Snapshot{
		"id":          vs.ID,
		"name":        vs.Name,
		"status":      vs.Status,
		"usage_bytes": vs.UsageBytes,
		"file_counts": vs.FileCounts,
	}
}

func batchSnapshot(batch openai.VectorStoreFileBatch) Snapshot {
	return Snapshot{
		"id":              batch.ID,
		"vector_store_id": batch.VectorStoreID,
		"status":          batch.Status,
		"file_counts":     batch.FileCounts,
	}
}

func emit(ctx context.Context, out chan<- Snapshot, snap Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
