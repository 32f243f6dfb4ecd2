// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler handles job errors with standardized error handling
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// JobAction is what the handler does with a failed job.
type JobAction string

const (
	ActionFail  JobAction = "fail"
	ActionThrow JobAction = "throw"
)

// Decide picks between failing the job with retries left and throwing a BPMN
// error. remaining is the job's current retry budget.
func Decide(stdErr *StandardError, remaining int32) (JobAction, int) {
	maxRetries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable || maxRetries == 0 || remaining <= 1 {
		return ActionThrow, 0
	}
	retries := int(remaining) - 1
	if retries > maxRetries {
		retries = maxRetries
	}
	return ActionFail, retries
}

// HandleJobError handles any error in a worker job
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	action, retries := Decide(stdErr, job.Retries)
	h.logError(job, stdErr, bpmnErr, action, retries)

	if action == ActionFail {
		h.failJobWithRetries(ctx, client, job, bpmnErr, retries)
	} else {
		h.throwBPMNError(ctx, client, job, bpmnErr)
	}
}

// Normalize ensures we always have a StandardError
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retries)).
		ErrorMessage(bpmnErr.Message)

	var err error
	if varsJSON, mErr := json.Marshal(bpmnErr.ToErrorVariables()); mErr == nil {
		if cmdWithVars, vErr := cmd.VariablesFromString(string(varsJSON)); vErr == nil {
			_, err = cmdWithVars.Send(ctx)
			h.logSendError("fail", job, err)
			return
		}
	}
	_, err = cmd.Send(ctx)
	h.logSendError("fail", job, err)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	var err error
	if varsJSON, mErr := json.Marshal(bpmnErr.ToErrorVariables()); mErr == nil {
		if cmdWithVars, vErr := cmd.VariablesFromString(string(varsJSON)); vErr == nil {
			_, err = cmdWithVars.Send(ctx)
			h.logSendError("throw", job, err)
			return
		}
	}
	_, err = cmd.Send(ctx)
	h.logSendError("throw", job, err)
}

func (h *ErrorHandler) logSendError(command string, job entities.Job, err error) {
	if err == nil {
		return
	}
	h.logger.Error("Job command not delivered", map[string]interface{}{
		"jobKey":  job.Key,
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, action JobAction, retries int) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"action":           string(action),
		"retries":          retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
