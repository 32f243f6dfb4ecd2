// internal/workers/geo-analysis/run-geo-analysis/models.go
package rungeoanalysis

import (
	"encoding/json"

	"geodialogue/internal/models"
)

// Input is the process variable set handed to the job.
type Input struct {
	Request *models.AnalysisRequest `json:"request"`
}

// Output sets exactly one of analysisResult or analysisError.
type Output struct {
	AnalysisResult json.RawMessage `json:"analysisResult,omitempty"`
	AnalysisError  *AnalysisError  `json:"analysisError,omitempty"`
}

type AnalysisError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Transient bool   `json:"transient"`
}
