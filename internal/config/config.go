package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	JWKSURL     string
	CORSOrigins string
	TablePrefix string
	// Provider credentials
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	// AI orchestration settings
	AI AIConfig
	// Debug flags
	Debug bool
}

// AIConfig holds the tunable knobs of the response orchestration engine.
// Loaded once at startup and passed by reference into each constructor;
// nothing below this layer reads the environment directly.
type AIConfig struct {
	MaxTokens               int           // default response budget, clamped to [200, 2000]
	MaxHistoryTurns         int           // user+assistant pairs kept in the window, clamped to [4, 20]
	NoteMilestoneInterval   int           // messages between learning-note regenerations
	ArchetypePromptsEnabled bool          // disable to skip archetype clauses entirely
	ProviderPriority        []string      // failover order, e.g. ["anthropic", "openai"]
	RequestTimeout          time.Duration // hard deadline per provider attempt
	RetryBaseDelay          time.Duration // backoff base for transient errors
	RetryMaxAttempts        int           // attempts per provider before escalating
	MaxConcurrentCalls      int           // global cap on in-flight provider calls
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWKSURL:         getEnv("JWKS_URL", ""),
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     getTablePrefix(env),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AI: AIConfig{
			MaxTokens:               getEnvIntClamped("AI_MAX_TOKENS", 400, 200, 2000),
			MaxHistoryTurns:         getEnvIntClamped("AI_MAX_HISTORY_TURNS", 8, 4, 20),
			NoteMilestoneInterval:   getEnvIntClamped("NOTE_MILESTONE_INTERVAL", 5, 1, 50),
			ArchetypePromptsEnabled: getEnv("ARCHETYPE_PROMPTS_ENABLED", "true") == "true",
			ProviderPriority:        getEnvList("PROVIDER_PRIORITY_ORDER", []string{"anthropic", "openai"}),
			RequestTimeout:          time.Duration(getEnvIntClamped("AI_REQUEST_TIMEOUT_SECONDS", 25, 10, 30)) * time.Second,
			RetryBaseDelay:          time.Duration(getEnvIntClamped("AI_RETRY_BASE_MS", 800, 100, 5000)) * time.Millisecond,
			RetryMaxAttempts:        getEnvIntClamped("AI_RETRY_MAX_ATTEMPTS", 3, 1, 5),
			MaxConcurrentCalls:      getEnvIntClamped("AI_MAX_CONCURRENT_CALLS", 16, 1, 128),
		},
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// ClampMaxTokens bounds a caller-supplied per-request override to the same
// range the AI_MAX_TOKENS setting allows. Zero means "use the default".
func (c *AIConfig) ClampMaxTokens(override int) int {
	if override <= 0 {
		return c.MaxTokens
	}
	return clamp(override, 200, 2000)
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntClamped(key string, defaultValue, min, max int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return clamp(n, min, max)
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
