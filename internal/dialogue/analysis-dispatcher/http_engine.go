// internal/dialogue/analysis-dispatcher/http_engine.go
package analysisdispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apphttp "geodialogue/internal/common/http"
	"geodialogue/internal/models"
)

const analysisPath = "/api/v1/analysis"

// transientStatus lists HTTP statuses worth retrying.
var transientStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// HTTPEngine posts requests to {base}/api/v1/analysis. Success bodies are
// {"result": ...}, failures {"error": {"code", "message", "transient"}}.
type HTTPEngine struct {
	client *apphttp.Client
	url    string
}

// NewHTTPEngine has no client timeout; the dispatcher bounds each attempt.
func NewHTTPEngine(baseURL, apiKey string) *HTTPEngine {
	client := apphttp.NewClient(0)
	if apiKey != "" {
		client.WithHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPEngine{
		client: client,
		url:    strings.TrimRight(baseURL, "/") + analysisPath,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Run(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error) {
	resp, err := e.client.PostJSON(ctx, e.url, req)
	if err != nil {
		return nil, err
	}

	if resp.OK() {
		var body struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil || len(body.Result) == 0 || string(body.Result) == "null" {
			return nil, &EngineError{Code: "EMPTY_RESULT", Message: "engine returned no result", StatusCode: resp.StatusCode}
		}
		return body.Result, nil
	}

	var body struct {
		Error *EngineError `json:"error"`
	}
	engineErr := &EngineError{Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Error != nil {
		engineErr = body.Error
	}
	engineErr.StatusCode = resp.StatusCode
	engineErr.Transient = engineErr.Transient || transientStatus[resp.StatusCode]
	return nil, engineErr
}
