package openai

import (
	"errors"
	"net/http"

	"github.com/loom-ai/loom/internal/config"
	"github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned when a Service is requested for a user
// without a stored provider credential.
var ErrMissingAPIKey = errors.New("missing OpenAI API key")

// Service wraps one user's OpenAI credential. A fresh Service is constructed
// per request or connection so credentials are never shared across users.
type Service struct {
	client  *openai.Client
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// NewService builds a credentialed client. The empty key fails fast so
// callers surface a credential error before any network activity.
func NewService(apiKey string) (*Service, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = config.GetOpenAIBaseURL()

	return &Service{
		client:  openai.NewClientWithConfig(cfg),
		apiKey:  apiKey,
		baseURL: cfg.BaseURL,
		httpc:   &http.Client{},
	}, nil
}

// Client exposes the underlying SDK client for collaborators that speak its
// types directly.
func (s *Service) Client() *openai.Client {
	return s.client
}
