// Package account manages user records and credential lookup. Provider API
// keys are read per user on every run: there is no process-wide credential.
package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/infrastructure/redis"
	"github.com/loom-ai/loom/internal/store"
)

var (
	// ErrAPIKeyNotFound means the user exists but has no provider
	// credential on file.
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrInvalidCredentials means the username/account key pair did not
	// match a user.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const apiKeyCacheLifetime = 5 * time.Minute

// CredentialCache caches provider API keys by user id.
type CredentialCache interface {
	Set(ctx context.Context, userID, apiKey string) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
}

type redisCache struct {
	redisService *redis.Service
}

type memoryCache struct {
	mu   sync.RWMutex
	keys map[string]string
}

// Service provides account registration and credential lookup.
type Service struct {
	store *store.Store
	cache CredentialCache
}

// NewService creates an account service. When redisService is nil or
// unreachable, the credential cache falls back to process memory.
func NewService(st *store.Store, redisService *redis.Service) *Service {
	var cache CredentialCache
	if redisService != nil {
		if err := redisService.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable - using in-memory credential cache")
			cache = newMemoryCache()
		} else {
			cache = &redisCache{redisService: redisService}
		}
	} else {
		cache = newMemoryCache()
	}

	return &Service{store: st, cache: cache}
}

// Register creates a new user and returns its record.
func (s *Service) Register(ctx context.Context, username, accountKey string) (*store.User, error) {
	if username == "" || accountKey == "" {
		return nil, errors.New("username and account_key are required")
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username %q already taken", username)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	user := store.User{
		ID:         uuid.NewString(),
		Username:   username,
		AccountKey: accountKey,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies a username/account key pair and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, accountKey string) (*store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.AccountKey != accountKey {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// SetAPIKey stores the user's provider credential and refreshes the cache.
func (s *Service) SetAPIKey(ctx context.Context, userID, apiKey string) error {
	if apiKey == "" {
		return errors.New("api_key is required")
	}
	if err := s.store.SetUserAPIKey(ctx, userID, apiKey); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, userID, apiKey); err != nil {
		log.Warn().Str("user_id", userID).Err(err).Msg("Failed to cache api key")
	}
	return nil
}

// APIKey returns the user's provider credential, consulting the cache first.
// ErrAPIKeyNotFound is returned when the user has none on file.
func (s *Service) APIKey(ctx context.Context, userID string) (string, error) {
	if key, err := s.cache.Get(ctx, userID); err == nil && key != "" {
		return key, nil
	}

	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrAPIKeyNotFound
	}
	if err != nil {
		return "", err
	}
	if user.APIKey == "" {
		return "", ErrAPIKeyNotFound
	}

	if err := s.cache.Set(ctx, userID, user.APIKey); err != nil {
		log.Warn().Str("user_id", userID).Err(err).Msg("Failed to cache api key")
	}
	return user.APIKey, nil
}

func cacheKey(userID string) string {
	return "apikey:" + userID
}

func (rc *redisCache) Set(ctx context.Context, userID, apiKey string) error {
	return rc.redisService.Set(ctx, cacheKey(userID), apiKey, apiKeyCacheLifetime)
}

func (rc *redisCache) Get(ctx context.Context, userID string) (string, error) {
	return rc.redisService.Get(ctx, cacheKey(userID))
}

func (rc *redisCache) Delete(ctx context.Context, userID string) error {
	return rc.redisService.Delete(ctx, cacheKey(userID))
}

func newMemoryCache() *memoryCache {
	return &memoryCache{keys: make(map[string]string)}
}

func (mc *memoryCache) Set(_ context.Context, userID, apiKey string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.keys[userID] = apiKey
	return nil
}

func (mc *memoryCache) Get(_ context.Context, userID string) (string, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.keys[userID], nil
}

func (mc *memoryCache) Delete(_ context.Context, userID string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.keys, userID)
	return nil
}
