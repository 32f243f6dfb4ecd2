// internal/dialogue/analysis-dispatcher/zeebe_engine.go
package analysisdispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"geodialogue/internal/models"
)

// ProcessStarter starts a BPMN process and waits for its variables.
// *camunda.Client implements it.
type ProcessStarter interface {
	StartProcessWithResult(ctx context.Context, processID string, variables interface{}) (map[string]interface{}, error)
}

// ZeebeEngine runs analyses as instances of a BPMN process. The process
// receives {"request": AnalysisRequest} and ends with either analysisResult
// or analysisError set.
type ZeebeEngine struct {
	starter   ProcessStarter
	processID string
}

func NewZeebeEngine(starter ProcessStarter, processID string) *ZeebeEngine {
	return &ZeebeEngine{starter: starter, processID: processID}
}

func (e *ZeebeEngine) Name() string { return "zeebe" }

func (e *ZeebeEngine) Run(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error) {
	vars, err := e.starter.StartProcessWithResult(ctx, e.processID, map[string]interface{}{"request": req})
	if err != nil {
		return nil, err
	}

	if raw, ok := vars["analysisError"]; ok && raw != nil {
		engineErr := &EngineError{Code: "ENGINE_FAILURE"}
		data, _ := json.Marshal(raw)
		if err := json.Unmarshal(data, engineErr); err != nil {
			engineErr.Message = fmt.Sprint(raw)
		}
		return nil, engineErr
	}

	raw, ok := vars["analysisResult"]
	if !ok || raw == nil {
		return nil, &EngineError{Code: "EMPTY_RESULT", Message: fmt.Sprintf("process %s ended without a result", e.processID)}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	return data, nil
}
