package config

// GetDatabasePath returns the sqlite file backing the local mirror store
func GetDatabasePath() string {
	return GetEnvOrDefault("LOOM_DB", "loom.db")
}
