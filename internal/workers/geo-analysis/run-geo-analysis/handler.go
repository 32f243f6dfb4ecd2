// internal/workers/geo-analysis/run-geo-analysis/handler.go
package rungeoanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "geodialogue/internal/common/errors"
	"geodialogue/internal/common/logger"
	"geodialogue/internal/common/metrics"
	analysisdispatcher "geodialogue/internal/dialogue/analysis-dispatcher"
	"geodialogue/internal/models"
)

const TaskType = "run-geo-analysis"

// commandTimeout bounds the complete/fail command sent after the engine call.
const commandTimeout = 10 * time.Second

var ErrMissingRequest = errors.New("MISSING_REQUEST")

// Engine runs one analysis request.
type Engine interface {
	Run(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error)
}

// reporter sends the outcome of a job back to the broker.
type reporter interface {
	complete(ctx context.Context, job entities.Job, output *Output) error
	fail(ctx context.Context, job entities.Job, stdErr *apperrors.StandardError)
}

type zeebeReporter struct {
	client       worker.JobClient
	errorHandler *apperrors.ErrorHandler
}

func (r *zeebeReporter) complete(ctx context.Context, job entities.Job, output *Output) error {
	cmd, err := r.client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete job command: %w", err)
	}
	return nil
}

func (r *zeebeReporter) fail(ctx context.Context, job entities.Job, stdErr *apperrors.StandardError) {
	r.errorHandler.HandleJobError(ctx, r.client, job, stdErr)
}

type Handler struct {
	config       *Config
	engine       Engine
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	newReporter  func(worker.JobClient) reporter
}

// NewHandler uses the HTTP engine at config.EngineBaseURL when engine is nil.
func NewHandler(config *Config, engine Engine, log logger.Logger) *Handler {
	if engine == nil {
		engine = analysisdispatcher.NewHTTPEngine(config.EngineBaseURL, config.EngineAPIKey)
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config:       config,
		engine:       engine,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
	h.newReporter = func(client worker.JobClient) reporter {
		return &zeebeReporter{client: client, errorHandler: h.errorHandler}
	}
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	rep := h.newReporter(client)

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(rep, job, apperrors.NewPayloadValidationFailedError(fmt.Sprintf("parse input: %v", err)))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	output, err := h.Execute(ctx, &input)
	cancel()
	if err != nil {
		h.fail(rep, job, err)
		return nil
	}
	return h.completeJob(rep, job, output)
}

// Execute runs the analysis. Permanent engine failures are reported in the
// output so the process can branch on them; transient ones are returned as
// retryable errors.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Request == nil {
		return nil, apperrors.NewPayloadValidationFailedError(ErrMissingRequest.Error())
	}
	req := input.Request
	if !req.Kind.Valid() {
		return nil, apperrors.NewPayloadValidationFailedError(fmt.Sprintf("unknown analysis kind %q", req.Kind))
	}

	result, err := h.engine.Run(ctx, req)
	if err == nil {
		return &Output{AnalysisResult: result}, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, apperrors.NewEngineTimeoutError(h.config.Timeout)
	}

	var engineErr *analysisdispatcher.EngineError
	if errors.As(err, &engineErr) {
		if engineErr.Transient {
			return nil, apperrors.NewEngineTransientError(engineErr.Code, engineErr.Message)
		}
		h.logger.Warn("analysis rejected by engine", map[string]interface{}{
			"requestId": req.ID,
			"code":      engineErr.Code,
			"message":   engineErr.Message,
		})
		return &Output{AnalysisError: &AnalysisError{Code: engineErr.Code, Message: engineErr.Message}}, nil
	}
	return nil, apperrors.NewEngineTransientError("UNREACHABLE", err.Error())
}

// fail and completeJob run on their own context: the execute context may
// already be past its deadline when the engine timed out.
func (h *Handler) fail(rep reporter, job entities.Job, err error) {
	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	rep.fail(ctx, job, stdErr)
}

func (h *Handler) completeJob(rep reporter, job entities.Job, output *Output) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := rep.complete(ctx, job, output); err != nil {
		return err
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	return nil
}
