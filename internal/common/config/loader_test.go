package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
engine:
  base_url: http://engine.local
`

// ==========================
// Loader Tests
// ==========================

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "geo-dialogue", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 0.5, cfg.Dialogue.IntentThreshold)
	assert.Equal(t, 0.8, cfg.Dialogue.TieRatio)
	assert.Equal(t, 10, cfg.Dialogue.TurnCap)
	assert.Equal(t, "http", cfg.Engine.Mode)
	assert.Equal(t, 60000, cfg.Engine.Timeout)
	assert.Equal(t, 2, cfg.Engine.MaxRetries)
	assert.Equal(t, 200000, cfg.Server.WriteTimeout)
	assert.GreaterOrEqual(t, cfg.Server.WriteTimeout, cfg.Engine.DispatchBudget())
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, "@every 1m", cfg.Session.SweepSchedule)
	assert.Equal(t, "embedded", cfg.Locations.Source)
	assert.Equal(t, 0.25, cfg.Locations.BBoxBuffer)
	assert.Equal(t, "geo-analysis", cfg.Camunda.ProcessID)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_ENGINE_URL", "http://engine.from.env")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromFile(writeConfig(t, `
engine:
  base_url: ${TEST_ENGINE_URL}
llm:
  enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, "http://engine.from.env", cfg.Engine.BaseURL)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey, "empty api key falls back to OPENAI_API_KEY")
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{
			name: "http engine without url",
			body: "engine:\n  mode: http\n",
			msg:  "engine.base_url is required",
		},
		{
			name: "zeebe engine without broker",
			body: "engine:\n  mode: zeebe\n",
			msg:  "camunda.broker_address is required",
		},
		{
			name: "unknown engine mode",
			body: "engine:\n  mode: grpc\n  base_url: http://x\n",
			msg:  "engine.mode must be http or zeebe",
		},
		{
			name: "redis without address",
			body: minimalConfig + "session:\n  backend: redis\n",
			msg:  "database.redis.address is required",
		},
		{
			name: "csv without path",
			body: minimalConfig + "locations:\n  source: csv\n",
			msg:  "locations.path is required",
		},
		{
			name: "threshold out of range",
			body: minimalConfig + "dialogue:\n  intent_threshold: 1.5\n",
			msg:  "dialogue.intent_threshold",
		},
		{
			name: "write timeout shorter than dispatch budget",
			body: minimalConfig + "server:\n  write_timeout: 180000\n",
			msg:  "must cover the engine dispatch budget of 181500ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENGINE_API_KEY", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestEngineConfig_DispatchBudget(t *testing.T) {
	tests := []struct {
		name   string
		engine EngineConfig
		want   int
	}{
		{"defaults", EngineConfig{Timeout: 60000, MaxRetries: 2, BackoffBase: 500, BackoffMax: 5000}, 181500},
		{"no retries", EngineConfig{Timeout: 1000, MaxRetries: 0, BackoffBase: 500, BackoffMax: 5000}, 1000},
		{"backoff capped", EngineConfig{Timeout: 1000, MaxRetries: 4, BackoffBase: 1000, BackoffMax: 3000}, 5000 + 1000 + 2000 + 3000 + 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.engine.DispatchBudget())
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}
