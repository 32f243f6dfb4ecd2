// internal/workers/geo-analysis/run-geo-analysis/config.go
package rungeoanalysis

import "time"

type Config struct {
	EngineBaseURL string
	EngineAPIKey  string
	Timeout       time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
