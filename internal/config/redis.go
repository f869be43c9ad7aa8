package config

// GetRedisURL returns the Redis address. Empty means the credential cache
// falls back to an in-process store.
func GetRedisURL() string {
	return GetEnvOrDefault("REDIS_URL", "")
}

// GetRedisPassword returns the Redis password, if any
func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}
