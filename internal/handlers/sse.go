package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/internal/services/vectorstore"
	"github.com/loom-ai/loom/pkg/httpext"
)

// HandleVectorStoreStatus streams indexing status snapshots for one vector
// store until it reaches a terminal state.
func (h *Handlers) HandleVectorStoreStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	vectorStoreID := mux.Vars(r)["id"]

	client, err := h.providerClient(r.Context(), userID)
	if err != nil {
		httpext.JsonError(w, "API key not found", http.StatusBadRequest)
		return
	}

	h.relaySnapshots(w, r, h.vectorStores.PollStatus(r.Context(), client, userID, vectorStoreID))
}

// HandleBatchStatus streams indexing status snapshots for one file batch.
func (h *Handlers) HandleBatchStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	vars := mux.Vars(r)

	client, err := h.providerClient(r.Context(), userID)
	if err != nil {
		httpext.JsonError(w, "API key not found", http.StatusBadRequest)
		return
	}

	h.relaySnapshots(w, r, h.vectorStores.PollBatchStatus(r.Context(), client, userID, vars["id"], vars["batch_id"]))
}

// relaySnapshots writes each snapshot as one SSE data event and flushes it
// immediately. The loop ends when the polling channel closes or the client
// goes away.
func (h *Handlers) relaySnapshots(w http.ResponseWriter, r *http.Request, snapshots <-chan vectorstore.Snapshot) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snap := range snapshots {
		payload, err := json.Marshal(snap)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode status snapshot")
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
