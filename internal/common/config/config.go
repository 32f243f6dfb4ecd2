// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Dialogue  DialogueConfig  `mapstructure:"dialogue"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Camunda   CamundaConfig   `mapstructure:"camunda"`
	Session   SessionConfig   `mapstructure:"session"`
	Locations LocationsConfig `mapstructure:"locations"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// DialogueConfig holds the conversation policy constants.
type DialogueConfig struct {
	IntentThreshold   float64 `mapstructure:"intent_threshold"`
	TieRatio          float64 `mapstructure:"tie_ratio"`
	TurnCap           int     `mapstructure:"turn_cap"`
	LLMExtraction     bool    `mapstructure:"llm_extraction"`
	LLMClassification bool    `mapstructure:"llm_classification"`
}

// EngineConfig selects and tunes the analysis engine backend.
type EngineConfig struct {
	Mode        string `mapstructure:"mode"` // "http" or "zeebe"
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds, per attempt
	MaxRetries  int    `mapstructure:"max_retries"`
	BackoffBase int    `mapstructure:"backoff_base"` // milliseconds
	BackoffMax  int    `mapstructure:"backoff_max"`  // milliseconds
}

// DispatchBudget is the worst-case duration of one dispatch in milliseconds:
// every attempt timing out plus the backoff between attempts.
func (e EngineConfig) DispatchBudget() int {
	total := (e.MaxRetries + 1) * e.Timeout
	delay := e.BackoffBase
	for retry := 1; retry <= e.MaxRetries; retry++ {
		if e.BackoffMax > 0 && delay > e.BackoffMax {
			delay = e.BackoffMax
		}
		total += delay
		delay *= 2
	}
	return total
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	ProcessID      string `mapstructure:"process_id"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	WorkerEnabled  bool   `mapstructure:"worker_enabled"`
	WorkerRetries  int    `mapstructure:"worker_retries"`
}

// SessionConfig selects where conversation state lives.
type SessionConfig struct {
	Backend       string `mapstructure:"backend"` // "memory" or "redis"
	TTL           int    `mapstructure:"ttl"`     // milliseconds
	KeyPrefix     string `mapstructure:"key_prefix"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// LocationsConfig selects the location table source.
type LocationsConfig struct {
	Source              string  `mapstructure:"source"` // "embedded", "csv" or "postgres"
	Path                string  `mapstructure:"path"`
	Table               string  `mapstructure:"table"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	BBoxBuffer          float64 `mapstructure:"bbox_buffer"`
}

// LLMConfig configures the optional language-model fallback.
type LLMConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
	MaxTokens int    `mapstructure:"max_tokens"`
	CacheSize int    `mapstructure:"cache_size"`
}

type RegistryConfig struct {
	OverridesPath string `mapstructure:"overrides_path"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
