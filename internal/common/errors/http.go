// internal/common/errors/http.go
package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPStatus maps a code to the status returned by the chat API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeInvalidParameterValue, ErrCodePayloadValidationFailed:
		return http.StatusBadRequest
	case ErrCodeSessionNotFound:
		return http.StatusNotFound
	case ErrCodeSessionStoreFailed:
		return http.StatusServiceUnavailable
	case ErrCodeEngineTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeEngineTransient, ErrCodeEngineFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorEnvelope struct {
	Error *StandardError `json:"error"`
}

// WriteHTTPError writes err as a JSON error envelope. Errors outside the
// taxonomy are reported as INTERNAL_ERROR without their details.
func WriteHTTPError(w http.ResponseWriter, err error) {
	stdErr, ok := AsStandardError(err)
	if !ok {
		stdErr = NewInternalError(err)
		stdErr.Details = ""
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(stdErr.Code))
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: stdErr})
}
