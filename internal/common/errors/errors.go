// Package errors provides the error taxonomy shared by the dialogue, the
// dispatcher, the HTTP API and the workflow worker.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Dialogue outcomes. These are answered with a question, never surfaced as
// transport errors.
const (
	ErrCodeAmbiguousIntent       ErrorCode = "AMBIGUOUS_INTENT"
	ErrCodeMissingParameter      ErrorCode = "MISSING_PARAMETER"
	ErrCodeInvalidParameterValue ErrorCode = "INVALID_PARAMETER_VALUE"
	ErrCodeUnresolvableLocation  ErrorCode = "UNRESOLVABLE_LOCATION"
	ErrCodeDialogueStalled       ErrorCode = "DIALOGUE_STALLED"
)

// Analysis engine failures.
const (
	ErrCodeEngineTransient ErrorCode = "ENGINE_TRANSIENT"
	ErrCodeEngineTimeout   ErrorCode = "ENGINE_TIMEOUT"
	ErrCodeEngineFailure   ErrorCode = "ENGINE_FAILURE"
)

// Infrastructure and transport failures.
const (
	ErrCodeSessionStoreFailed      ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeSessionNotFound         ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeInvalidRequest          ErrorCode = "INVALID_REQUEST"
	ErrCodePayloadValidationFailed ErrorCode = "PAYLOAD_VALIDATION_FAILED"
	ErrCodeLLMRequestFailed        ErrorCode = "LLM_REQUEST_FAILED"
	ErrCodeLLMTimeout              ErrorCode = "LLM_TIMEOUT"
	ErrCodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap returns the error the StandardError was built from, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with one metadata entry added.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError finds a StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewAmbiguousIntentError reports a classification below the confidence threshold.
func NewAmbiguousIntentError(confidence float64) *StandardError {
	return &StandardError{
		Code:      ErrCodeAmbiguousIntent,
		Message:   "Could not tell which analysis was requested",
		Details:   fmt.Sprintf("confidence: %.2f", confidence),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingParameterError names the next parameter to ask for.
func NewMissingParameterError(kind, param string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingParameter,
		Message:   "Required parameter not provided",
		Details:   fmt.Sprintf("kind: %s, parameter: %s", kind, param),
		Retryable: false,
		Metadata:  map[string]interface{}{"parameter": param},
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidParameterValueError reports a value that failed type or range checks.
func NewInvalidParameterValueError(param string, value interface{}) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidParameterValue,
		Message:   "Parameter value is not valid",
		Details:   fmt.Sprintf("parameter: %s, value: %v", param, value),
		Retryable: false,
		Metadata:  map[string]interface{}{"parameter": param},
		Timestamp: time.Now().UTC(),
	}
}

// NewUnresolvableLocationError reports a place name missing from the location table.
func NewUnresolvableLocationError(phrase string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnresolvableLocation,
		Message:   "Location not found",
		Details:   fmt.Sprintf("phrase: %s", phrase),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDialogueStalledError reports a session that hit the turn cap.
func NewDialogueStalledError(turns int) *StandardError {
	return &StandardError{
		Code:      ErrCodeDialogueStalled,
		Message:   "Dialogue exceeded the turn limit",
		Details:   fmt.Sprintf("turns: %d", turns),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEngineTransientError wraps a failure the engine flagged as temporary.
func NewEngineTransientError(code, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEngineTransient,
		Message:   message,
		Details:   fmt.Sprintf("engineCode: %s", code),
		Retryable: true,
		Metadata:  map[string]interface{}{"engineCode": code},
		Timestamp: time.Now().UTC(),
	}
}

// NewEngineTimeoutError reports an attempt that exceeded its time budget.
func NewEngineTimeoutError(timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeEngineTimeout,
		Message:   "Analysis engine did not answer in time",
		Details:   fmt.Sprintf("timeout: %s", timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEngineFailureError wraps a permanent engine failure.
func NewEngineFailureError(code, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEngineFailure,
		Message:   message,
		Details:   fmt.Sprintf("engineCode: %s", code),
		Retryable: false,
		Metadata:  map[string]interface{}{"engineCode": code},
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionStoreError wraps a session persistence failure.
func NewSessionStoreError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStoreFailed,
		Message:   "Session store error",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSessionNotFoundError reports an unknown session id.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError reports a malformed transport request.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadValidationFailedError reports a dispatch payload rejected by its JSON schema.
func NewPayloadValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadValidationFailed,
		Message:   "Analysis request failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMRequestFailedError wraps a failed completion call.
func NewLLMRequestFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMRequestFailed,
		Message:   "Language model request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Language model request timed out",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes caught by
// boundary events in the geo-analysis process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeEngineTransient:         "ENGINE_TRANSIENT",
	ErrCodeEngineTimeout:           "ENGINE_TIMEOUT",
	ErrCodeEngineFailure:           "ENGINE_FAILURE",
	ErrCodePayloadValidationFailed: "ANALYSIS_REQUEST_INVALID",
	ErrCodeInvalidRequest:          "ANALYSIS_REQUEST_INVALID",
	ErrCodeInternal:                "INTERNAL_ERROR",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeEngineTransient,
		ErrCodeSessionStoreFailed,
		ErrCodeLLMRequestFailed:
		return 3

	case ErrCodeEngineTimeout:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "ENGINE"):
		return "ENGINE"
	case strings.HasPrefix(codeStr, "SESSION"):
		return "SESSION"
	case strings.HasPrefix(codeStr, "LLM"):
		return "AI"
	case code == ErrCodeAmbiguousIntent || code == ErrCodeMissingParameter ||
		code == ErrCodeUnresolvableLocation || code == ErrCodeDialogueStalled:
		return "DIALOGUE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
