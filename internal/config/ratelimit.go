package config

import (
	"time"
)

// RateLimitConfig holds the sliding-window knobs for one endpoint group.
type RateLimitConfig struct {
	Enabled bool
	Window  time.Duration
	MaxHits int
}

// Defaults per endpoint group. Token minting is cheap to abuse, status
// streams hold a goroutine for minutes, generation burns upstream quota.
var rateLimitDefaults = map[string]RateLimitConfig{
	"token":    {Enabled: true, Window: time.Minute, MaxHits: 30},
	"sse":      {Enabled: true, Window: time.Minute, MaxHits: 60},
	"generate": {Enabled: true, Window: time.Minute, MaxHits: 20},
}

// GetRateLimitConfig returns the rate limit settings for the given endpoint
// group. RATE_LIMIT_ENABLED=false disables limiting globally.
func GetRateLimitConfig(limitKey string) RateLimitConfig {
	cfg, ok := rateLimitDefaults[limitKey]
	if !ok {
		cfg = RateLimitConfig{Enabled: true, Window: time.Minute, MaxHits: 60}
	}
	if GetEnvOrDefault("RATE_LIMIT_ENABLED", "true") == "false" {
		cfg.Enabled = false
	}
	return cfg
}
