// internal/dialogue/analysis-dispatcher/engine.go
package analysisdispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"geodialogue/internal/models"
)

// Engine runs one analysis. The returned payload is passed on untouched.
type Engine interface {
	Name() string
	Run(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error)
}

// EngineError is a structured failure reported by the engine itself.
type EngineError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Transient  bool   `json:"transient"`
	StatusCode int    `json:"-"`
}

func (e *EngineError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("engine error %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("engine error %s: %s", e.Code, e.Message)
}

// reason is the text relayed to the user.
func (e *EngineError) reason() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}
