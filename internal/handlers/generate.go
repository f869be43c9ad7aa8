package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/internal/services/generate"
	"github.com/loom-ai/loom/pkg/httpext"
)

// HandleGenerate produces an assistant-building artifact for the prompt in
// the request body. The path's {kind} segment selects what is generated.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	kind := generate.Kind(mux.Vars(r)["kind"])

	var req struct {
		Prompt string `json:"prompt"`
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

	message, err := h.generator.Generate(r.Context(), client.Client(), kind, req.Prompt)
	if err != nil {
		if errors.Is(err, generate.ErrUnknownKind) {
			httpext.JsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Error().Str("kind", string(kind)).Err(err).Msg("Generation failed")
		httpext.JsonError(w, "Generation failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
