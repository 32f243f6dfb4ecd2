package rungeoanalysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "geodialogue/internal/common/errors"
	"geodialogue/internal/common/logger"
	"geodialogue/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig(baseURL string) *Config {
	return &Config{
		EngineBaseURL: baseURL,
		Timeout:       2 * time.Second,
	}
}

func createTestHandler(t *testing.T, status int, body string) *Handler {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analysis", r.URL.Path)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewHandler(createTestConfig(srv.URL), nil, logger.NewTestLogger(t))
}

func createTestInput() *Input {
	return &Input{Request: &models.AnalysisRequest{
		ID:     "req-7",
		Kind:   models.KindPopulationExposure,
		Params: models.ParameterSet{"city": "Manila", "year": 2015, "threshold": 2.0},
	}}
}

// recordingReporter captures job outcomes and whether their context was
// still usable when the command would have been sent.
type recordingReporter struct {
	completed *Output
	failed    *apperrors.StandardError
	ctxErr    error
}

func (r *recordingReporter) complete(ctx context.Context, job entities.Job, output *Output) error {
	r.completed = output
	r.ctxErr = ctx.Err()
	return nil
}

func (r *recordingReporter) fail(ctx context.Context, job entities.Job, stdErr *apperrors.StandardError) {
	r.failed = stdErr
	r.ctxErr = ctx.Err()
}

type funcEngine func(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error)

func (f funcEngine) Run(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error) {
	return f(ctx, req)
}

func createTestJob(t *testing.T) entities.Job {
	t.Helper()
	vars, err := json.Marshal(createTestInput())
	require.NoError(t, err)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       42,
		Type:      TaskType,
		Retries:   3,
		Variables: string(vars),
	}}
}

func createRecordingHandler(t *testing.T, timeout time.Duration, engine Engine) (*Handler, *recordingReporter) {
	t.Helper()
	rec := &recordingReporter{}
	handler := NewHandler(&Config{Timeout: timeout}, engine, logger.NewTestLogger(t))
	handler.newReporter = func(worker.JobClient) reporter { return rec }
	return handler, rec
}

func requireStandardError(t *testing.T, err error, code apperrors.ErrorCode, retryable bool) {
	t.Helper()
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok, "expected StandardError, got %v", err)
	assert.Equal(t, code, stdErr.Code)
	assert.Equal(t, retryable, stdErr.Retryable)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	handler := createTestHandler(t, http.StatusOK, `{"result":{"exposed_population":120000}}`)

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.Nil(t, output.AnalysisError)
	assert.JSONEq(t, `{"exposed_population":120000}`, string(output.AnalysisResult))

	encoded, err := json.Marshal(output)
	require.NoError(t, err)
	assert.JSONEq(t, `{"analysisResult":{"exposed_population":120000}}`, string(encoded))
}

func TestHandler_Execute_PermanentFailure(t *testing.T) {
	handler := createTestHandler(t, http.StatusUnprocessableEntity,
		`{"error":{"code":"NO_CENSUS","message":"no census grid for 2015"}}`)

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	require.NotNil(t, output.AnalysisError)
	assert.Equal(t, "NO_CENSUS", output.AnalysisError.Code)
	assert.Equal(t, "no census grid for 2015", output.AnalysisError.Message)
	assert.Empty(t, output.AnalysisResult)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	t.Run("transient status", func(t *testing.T) {
		handler := createTestHandler(t, http.StatusServiceUnavailable, `{}`)
		_, err := handler.Execute(context.Background(), createTestInput())
		requireStandardError(t, err, apperrors.ErrCodeEngineTransient, true)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()
		handler := NewHandler(createTestConfig(srv.URL), nil, logger.NewTestLogger(t))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := handler.Execute(ctx, createTestInput())
		requireStandardError(t, err, apperrors.ErrCodeEngineTimeout, true)
	})

	t.Run("unreachable engine", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		handler := NewHandler(createTestConfig(url), nil, logger.NewTestLogger(t))

		_, err := handler.Execute(context.Background(), createTestInput())
		requireStandardError(t, err, apperrors.ErrCodeEngineTransient, true)
	})

	t.Run("missing request", func(t *testing.T) {
		handler := createTestHandler(t, http.StatusOK, `{"result":{}}`)
		_, err := handler.Execute(context.Background(), &Input{})
		requireStandardError(t, err, apperrors.ErrCodePayloadValidationFailed, false)
	})

	t.Run("unknown kind", func(t *testing.T) {
		handler := createTestHandler(t, http.StatusOK, `{"result":{}}`)
		input := createTestInput()
		input.Request.Kind = "weather"
		_, err := handler.Execute(context.Background(), input)
		requireStandardError(t, err, apperrors.ErrCodePayloadValidationFailed, false)
	})
}

// ==========================
// Job Command Tests
// ==========================

func TestHandler_Handle_CompletesJob(t *testing.T) {
	handler, rec := createRecordingHandler(t, time.Second, funcEngine(func(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"exposed_population":120000}`), nil
	}))

	require.NoError(t, handler.Handle(nil, createTestJob(t)))

	require.NotNil(t, rec.completed)
	assert.JSONEq(t, `{"exposed_population":120000}`, string(rec.completed.AnalysisResult))
	assert.Nil(t, rec.failed)
	assert.NoError(t, rec.ctxErr)
}

func TestHandler_Handle_EngineTimeoutStillFailsJob(t *testing.T) {
	handler, rec := createRecordingHandler(t, 20*time.Millisecond, funcEngine(func(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	require.NoError(t, handler.Handle(nil, createTestJob(t)))

	require.NotNil(t, rec.failed)
	assert.Equal(t, apperrors.ErrCodeEngineTimeout, rec.failed.Code)
	assert.True(t, rec.failed.Retryable)
	assert.NoError(t, rec.ctxErr, "fail command must not inherit the expired engine context")
	assert.Nil(t, rec.completed)
}

func TestHandler_Handle_BadVariables(t *testing.T) {
	handler, rec := createRecordingHandler(t, time.Second, funcEngine(func(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error) {
		t.Fatal("engine must not be called")
		return nil, nil
	}))
	job := createTestJob(t)
	job.Variables = "{not json"

	require.NoError(t, handler.Handle(nil, job))

	require.NotNil(t, rec.failed)
	assert.Equal(t, apperrors.ErrCodePayloadValidationFailed, rec.failed.Code)
}

func TestJobActionForEngineErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       *apperrors.StandardError
		remaining int32
		action    apperrors.JobAction
		retries   int
	}{
		{"transient with budget", apperrors.NewEngineTransientError("BUSY", "busy"), 3, apperrors.ActionFail, 2},
		{"transient exhausted", apperrors.NewEngineTransientError("BUSY", "busy"), 1, apperrors.ActionThrow, 0},
		{"timeout", apperrors.NewEngineTimeoutError(time.Second), 5, apperrors.ActionFail, 2},
		{"invalid payload", apperrors.NewPayloadValidationFailedError("bad"), 3, apperrors.ActionThrow, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, retries := apperrors.Decide(tt.err, tt.remaining)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.retries, retries)
		})
	}
}
