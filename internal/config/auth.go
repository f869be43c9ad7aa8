package config

import (
	"sync"
	"time"
)

var (
	jwtMu sync.RWMutex

	// jwtSecret signs the access tokens consumed by the query-token middleware.
	jwtSecret = []byte(GetEnvOrDefault("JWT_SECRET", "your-256-bit-secret"))

	// tokenLifetime bounds how long a minted access token stays valid.
	tokenLifetime = 1 * time.Hour
)

// GetJWTSecret returns the current JWT secret in a thread-safe manner
func GetJWTSecret() []byte {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtSecret
}

// SetJWTSecret temporarily changes the JWT secret and returns a function to restore it
// This is primarily used for testing
func SetJWTSecret(secret []byte) func() {
	jwtMu.Lock()
	previous := jwtSecret
	jwtSecret = secret
	jwtMu.Unlock()

	return func() {
		jwtMu.Lock()
		jwtSecret = previous
		jwtMu.Unlock()
	}
}

// GetTokenLifetime returns how long minted tokens remain valid
func GetTokenLifetime() time.Duration {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return tokenLifetime
}

// SetTokenLifetime temporarily changes the token lifetime and returns a restore function
func SetTokenLifetime(d time.Duration) func() {
	jwtMu.Lock()
	previous := tokenLifetime
	tokenLifetime = d
	jwtMu.Unlock()

	return func() {
		jwtMu.Lock()
		tokenLifetime = previous
		jwtMu.Unlock()
	}
}
