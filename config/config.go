// Package config provides environment-driven configuration for the gateway.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default model ids for the Workers AI backend. The backup model is used
// for the single primary→backup substitution retry.
const (
	DefaultWorkersAIModel = "@cf/meta/llama-4-scout-17b-16e-instruct"
	BackupWorkersAIModel  = "@cf/meta/llama-3.3-70b-instruct-fp8-fast"
	DefaultGeminiModel    = "gemini-2.0-flash"
)

// DefaultBodySizeLimit is the max accepted request body size (2MB).
const DefaultBodySizeLimit = "2M"

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig
	WorkersAI WorkersAIConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Memory    MemoryConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port      string
	MasterKey string
}

// WorkersAIConfig holds Cloudflare Workers AI configuration.
type WorkersAIConfig struct {
	AccountID    string
	APIToken     string
	DefaultModel string
	BackupModel  string
	// Aliases rewrites generic model names into concrete Workers AI ids.
	Aliases map[string]string
}

// OpenAIConfig holds OpenAI configuration.
type OpenAIConfig struct {
	APIKey string
	// StructuredModels lists the model ids known to support native
	// json_schema response_format. Models off this list fall back to a
	// forced tool call for structured output.
	StructuredModels []string
}

// GeminiConfig holds Google Gemini configuration.
type GeminiConfig struct {
	APIKey string
	// Aliases rewrites generic model names into concrete Gemini ids.
	Aliases map[string]string
}

// MemoryConfig holds conversation memory store configuration.
type MemoryConfig struct {
	// RedisURL enables the Redis-backed store when set; otherwise an
	// in-process store is used.
	RedisURL string
	TTL      time.Duration
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// defaultStructuredModels are the OpenAI models with native json_schema
// support as of this writing. Overridable via OPENAI_STRUCTURED_MODELS.
var defaultStructuredModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4o-2024-08-06",
	"gpt-4.1",
	"gpt-4.1-mini",
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	workersDefault := getEnv("WORKERS_AI_DEFAULT_MODEL", DefaultWorkersAIModel)
	workersBackup := getEnv("WORKERS_AI_BACKUP_MODEL", BackupWorkersAIModel)
	geminiDefault := getEnv("GEMINI_DEFAULT_MODEL", DefaultGeminiModel)

	cfg := &Config{
		Server: ServerConfig{
			Port:      getEnv("PORT", "8080"),
			MasterKey: os.Getenv("EDGEGATE_MASTER_KEY"),
		},
		WorkersAI: WorkersAIConfig{
			AccountID:    os.Getenv("CF_ACCOUNT_ID"),
			APIToken:     os.Getenv("CF_API_TOKEN"),
			DefaultModel: workersDefault,
			BackupModel:  workersBackup,
			Aliases: map[string]string{
				"gpt-4":         workersDefault,
				"gpt-3.5-turbo": workersDefault,
				"llama":         workersDefault,
			},
		},
		OpenAI: OpenAIConfig{
			APIKey:           os.Getenv("OPENAI_API_KEY"),
			StructuredModels: getEnvList("OPENAI_STRUCTURED_MODELS", defaultStructuredModels),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Aliases: map[string]string{
				"gemini": geminiDefault,
				"bard":   geminiDefault,
			},
		},
		Memory: MemoryConfig{
			RedisURL: os.Getenv("MEMORY_REDIS_URL"),
			TTL:      getEnvDuration("MEMORY_TTL", 24*time.Hour),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("METRICS_ENABLED", false),
			Endpoint: getEnv("METRICS_ENDPOINT", "/metrics"),
		},
	}

	return cfg, nil
}

// getEnv reads a string env var with a default.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true"/"1" are true).
func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

// getEnvList reads a comma-separated env var, trimming whitespace.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// getEnvDuration reads a Go duration env var (e.g. "24h").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}
