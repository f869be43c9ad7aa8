package config

// GetOpenAIBaseURL returns the base URL for the OpenAI API.
// Overridable so tests and regional proxies can point elsewhere.
func GetOpenAIBaseURL() string {
	return GetEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
}
