// Package handlers wires the HTTP, WebSocket and SSE surface to the
// underlying services.
package handlers

import (
	"context"

	"github.com/loom-ai/loom/internal/connections"
	provider "github.com/loom-ai/loom/internal/infrastructure/openai"
	"github.com/loom-ai/loom/internal/services/account"
	"github.com/loom-ai/loom/internal/services/artifact"
	"github.com/loom-ai/loom/internal/services/generate"
	"github.com/loom-ai/loom/internal/services/vectorstore"
)

// Handlers carries the services shared by all routes.
type Handlers struct {
	accounts     *account.Service
	artifacts    *artifact.Service
	vectorStores *vectorstore.Service
	generator    *generate.Service
	sessions     *connections.Manager
}

// New assembles the handler set.
func New(accounts *account.Service, artifacts *artifact.Service, vectorStores *vectorstore.Service, generator *generate.Service) *Handlers {
	return &Handlers{
		accounts:     accounts,
		artifacts:    artifacts,
		vectorStores: vectorStores,
		generator:    generator,
		sessions:     connections.NewManager(),
	}
}

// Sessions exposes the live-socket registry so shutdown can drain it.
func (h *Handlers) Sessions() *connections.Manager {
	return h.sessions
}

// providerClient builds a per-credential client for the given user.
func (h *Handlers) providerClient(ctx context.Context, userID string) (*provider.Service, error) {
	apiKey, err := h.accounts.APIKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	return provider.NewService(apiKey)
}
