package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	provider "github.com/loom-ai/loom/internal/infrastructure/openai"
	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/pkg/httpext"
)

type vectorStoreRequest struct {
	Name        string         `json:"name"`
	FileIDs     []string       `json:"file_ids"`
	ExpiresDays int            `json:"expires_days"`
	Metadata    map[string]any `json:"metadata"`
}

// HandleCreateVectorStore creates a remote vector store and returns it along
// with the SSE URL streaming its indexing status.
func (h *Handlers) HandleCreateVectorStore(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req vectorStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	client, err := h.providerClient(r.Context(), userID)
	if err != nil {
		httpext.JsonError(w, "API key not found", http.StatusBadRequest)
		return
	}

	vs, err := h.vectorStores.Create(r.Context(), client, userID, provider.VectorStoreParams{
		Name:        req.Name,
		FileIDs:     req.FileIDs,
		ExpiresDays: req.ExpiresDays,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.upstreamError(w, err, "Failed to create vector store")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"vector_store": vs,
		"sse_url":      fmt.Sprintf("/vector_stores/%s/status", vs.ID),
	})
}

// HandleListVectorStores lists the remote stores and reconciles the mirror.
func (h *Handlers) HandleListVectorStores(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	client, err := h.providerClient(r.Context(), userID)
	if err != nil {
		httpext.JsonError(w, "API key not found", http.StatusBadRequest)
		return
	}

	stores, err := h.vectorStores.List(r.Context(), client, userID, 0)
	if err != nil {
		h.upstreamError(w, err, "Failed to list vector stores")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"vector_stores": stores})
}

// HandleGetVectorStore fetches one store's remote state.
func (h *Handlers) HandleGetVectorStore(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	client, err := h.providerClient(r.Context(), userID)
	if err != nil {
		httpext.JsonError(w, "API key not found", http.StatusBadRequest)
		return
	}

	vs, err := h.vectorStores.Retrieve(r.Context(), client, userID, mux.Vars(r)["id"])
	if err != nil {
		h.upstreamError(w, err, "Failed to retrieve vector store")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(vs)
}

// HandleDeleteVectorStore removes the remote store and its mirror.
func (h *Handlers) HandleDeleteVectorStore(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	client, err := h.providerClient(r.Context(), userID)
	if err != nil {
		httpext.JsonError(w, "API key not found", http.StatusBadRequest)
		return
	}

	if err := h.vectorStores.Delete(r.Context(), client, userID, mux.Vars(r)["id"]); err != nil {
		h.upstreamError(w, err, "Failed to delete vector store")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateFileBatch enqueues files for indexing and returns the batch
// along with its status stream URL.
func (h *Handlers) HandleCreateFileBatch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	vectorStoreID := mux.Vars(r)["id"]

	var req struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	client, err := h.providerClient(r.Context(), userID)
	if err != nil {
		httpext.JsonError(w, "API key not found", http.StatusBadRequest)
		return
	}

	batch, err := h.vectorStores.CreateFileBatch(r.Context(), client, userID, vectorStoreID, req.FileIDs)
	if err != nil {
		h.upstreamError(w, err, "Failed to create file batch")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"batch":   batch,
		"sse_url": fmt.Sprintf("/vector_stores/%s/batches/%s/status", vectorStoreID, batch.ID),
	})
}

// upstreamError maps provider failures onto HTTP statuses: missing
// arguments become 400s, everything else a logged 502.
func (h *Handlers) upstreamError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, provider.ErrMissingArgument) {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Error().Err(err).Msg(msg)
	httpext.JsonError(w, msg, http.StatusBadGateway)
}
