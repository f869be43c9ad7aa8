package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/internal/services/account"
	"github.com/loom-ai/loom/internal/services/token"
	"github.com/loom-ai/loom/pkg/httpext"
)

type credentialsRequest struct {
	Username   string `json:"username"`
	AccountKey string `json:"account_key"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// HandleRegister creates a new user account.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Username, req.AccountKey)
	if err != nil {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"id":       user.ID,
		"username": user.Username,
	})
}

// HandleToken exchanges account credentials for an access token.
func (h *Handlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Username, req.AccountKey)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			httpext.JsonError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("Authentication failed")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	signed, expiresAt, err := token.Mint(user.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to mint access token")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	})
}

// HandleSetAPIKey stores the authenticated user's provider credential.
func (h *Handlers) HandleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.accounts.SetAPIKey(r.Context(), userID, req.APIKey); err != nil {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
