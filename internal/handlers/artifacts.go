package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/internal/store"
	"github.com/loom-ai/loom/pkg/httpext"
)

type artifactSummary struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Purpose     string `json:"purpose"`
	CreatedAt   int64  `json:"created_at"`
}

// HandleListArtifacts returns the authenticated user's artifact metadata.
func (h *Handlers) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	artifacts, err := h.artifacts.List(r.Context(), userID)
	if err != nil {
		log.Error().Str("user_id", userID).Err(err).Msg("Failed to list artifacts")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]artifactSummary, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, artifactSummary{
			FileID:      a.FileID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Purpose:     a.Purpose,
			CreatedAt:   a.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"artifacts": out})
}

// HandleDownloadArtifact serves one artifact's content.
func (h *Handlers) HandleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	fileID := mux.Vars(r)["file_id"]

	artifact, err := h.artifacts.Get(r.Context(), userID, fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpext.JsonError(w, "Artifact not found", http.StatusNotFound)
			return
		}
		log.Error().Str("file_id", fileID).Err(err).Msg("Failed to load artifact")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Write(artifact.Data)
}
