package dataverse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/erdflow/backend/pkg/errors"
)

// odataError is the standard error envelope {"error":{"code":..,"message":..}}.
type odataError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorMessage(body []byte) string {
	var envelope odataError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 300 {
		trimmed = trimmed[:300]
	}
	return trimmed
}

// isDuplicateFailure recognizes the platform's "already exists" responses,
// which arrive as 409 or as a 400 with a duplicate message.
func isDuplicateFailure(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	message := strings.ToLower(errorMessage(body))
	return strings.Contains(message, "already exists") || strings.Contains(message, "duplicate")
}

// isDependencyFailure recognizes delete responses rejected because other
// components still reference the entity.
func isDependencyFailure(body []byte) bool {
	message := strings.ToLower(errorMessage(body))
	return strings.Contains(message, "dependenc") || strings.Contains(message, "is referenced")
}

// classifyStatus maps a non-success HTTP response to the error taxonomy:
// throttling and server faults are transient, everything else permanent.
func classifyStatus(operation string, status int, body []byte) error {
	message := errorMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case isDuplicateFailure(status, body):
		return apperrors.NewConflictError(operation, message)
	case status == http.StatusTooManyRequests,
		status == http.StatusInternalServerError,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return apperrors.NewTransientError(operation, fmt.Errorf("HTTP %d: %s", status, message))
	default:
		return apperrors.NewPermanentError(operation, fmt.Sprintf("HTTP %d: %s", status, message))
	}
}
