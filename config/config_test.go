package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "EDGEGATE_MASTER_KEY",
		"CF_ACCOUNT_ID", "CF_API_TOKEN",
		"WORKERS_AI_DEFAULT_MODEL", "WORKERS_AI_BACKUP_MODEL",
		"OPENAI_API_KEY", "OPENAI_STRUCTURED_MODELS",
		"GEMINI_API_KEY", "GEMINI_DEFAULT_MODEL",
		"MEMORY_REDIS_URL", "MEMORY_TTL",
		"METRICS_ENABLED", "METRICS_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Server.MasterKey)

	assert.Equal(t, DefaultWorkersAIModel, cfg.WorkersAI.DefaultModel)
	assert.Equal(t, BackupWorkersAIModel, cfg.WorkersAI.BackupModel)
	assert.Equal(t, DefaultWorkersAIModel, cfg.WorkersAI.Aliases["gpt-4"])
	assert.Equal(t, DefaultWorkersAIModel, cfg.WorkersAI.Aliases["gpt-3.5-turbo"])

	assert.Contains(t, cfg.OpenAI.StructuredModels, "gpt-4o")
	assert.Equal(t, DefaultGeminiModel, cfg.Gemini.Aliases["gemini"])
	assert.Equal(t, DefaultGeminiModel, cfg.Gemini.Aliases["bard"])

	assert.Equal(t, 24*time.Hour, cfg.Memory.TTL)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("EDGEGATE_MASTER_KEY", "secret")
	t.Setenv("CF_ACCOUNT_ID", "acct-1")
	t.Setenv("CF_API_TOKEN", "tok-1")
	t.Setenv("WORKERS_AI_DEFAULT_MODEL", "@cf/custom/model")
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("OPENAI_STRUCTURED_MODELS", "gpt-4o, gpt-4.1 ,gpt-5")
	t.Setenv("MEMORY_TTL", "1h")
	t.Setenv("METRICS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.MasterKey)
	assert.Equal(t, "acct-1", cfg.WorkersAI.AccountID)
	assert.Equal(t, "@cf/custom/model", cfg.WorkersAI.DefaultModel)
	assert.Equal(t, "@cf/custom/model", cfg.WorkersAI.Aliases["gpt-4"],
		"alias table should track the configured default")
	assert.Equal(t, []string{"gpt-4o", "gpt-4.1", "gpt-5"}, cfg.OpenAI.StructuredModels)
	assert.Equal(t, time.Hour, cfg.Memory.TTL)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadInvalidTTLFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMORY_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Memory.TTL)
}
