package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// NotFoundError represents a resource that was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int {
	return http.StatusNotFound
}

func (e *NotFoundError) Code() string {
	return "NOT_FOUND"
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents invalid input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationError) Code() string {
	return "VALIDATION_ERROR"
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConfigurationError represents missing or invalid required input (no
// publisher prefix, empty diagram). It aborts a run before any remote call.
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Message)
}

func (e *ConfigurationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ConfigurationError) Code() string {
	return "CONFIGURATION_ERROR"
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(setting, message string) *ConfigurationError {
	return &ConfigurationError{Setting: setting, Message: message}
}

// GenerationError represents an unresolvable reference during schema
// generation. It is fatal to the affected entity or relationship only,
// never to the whole document.
type GenerationError struct {
	Subject string // entity or relationship name
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation error for '%s': %s", e.Subject, e.Message)
}

func (e *GenerationError) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

func (e *GenerationError) Code() string {
	return "GENERATION_ERROR"
}

// NewGenerationError creates a new GenerationError
func NewGenerationError(subject, message string) *GenerationError {
	return &GenerationError{Subject: subject, Message: message}
}

// ConflictError represents a conflict with existing data
type ConflictError struct {
	Resource string
	Name     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Resource, e.Name)
}

func (e *ConflictError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *ConflictError) Code() string {
	return "CONFLICT"
}

// NewConflictError creates a new ConflictError
func NewConflictError(resource, name string) *ConflictError {
	return &ConflictError{Resource: resource, Name: name}
}

// TransientError represents a retryable network or server condition
// reported by the metadata client.
type TransientError struct {
	Operation string
	Cause     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Operation, e.Cause)
}

func (e *TransientError) HTTPStatus() int {
	return http.StatusBadGateway
}

func (e *TransientError) Code() string {
	return "TRANSIENT_ERROR"
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransientError creates a new TransientError
func NewTransientError(operation string, cause error) *TransientError {
	return &TransientError{Operation: operation, Cause: cause}
}

// PermanentError represents a validation rejection or dependency conflict
// from the remote platform. It is recorded as skipped-with-warning and is
// never retried.
type PermanentError struct {
	Operation  string
	Message    string
	Referenced bool // the platform reports the component is referenced by others
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure during %s: %s", e.Operation, e.Message)
}

func (e *PermanentError) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

func (e *PermanentError) Code() string {
	return "PERMANENT_ERROR"
}

// NewPermanentError creates a new PermanentError
func NewPermanentError(operation, message string) *PermanentError {
	return &PermanentError{Operation: operation, Message: message}
}

// NewReferencedError creates a PermanentError for a component that cannot
// be deleted or replaced because other components still reference it.
func NewReferencedError(operation, message string) *PermanentError {
	return &PermanentError{Operation: operation, Message: message, Referenced: true}
}

// InternalError represents unexpected server errors
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int {
	return http.StatusInternalServerError
}

func (e *InternalError) Code() string {
	return "INTERNAL_ERROR"
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// Helper functions for error checking

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsConfiguration checks if an error is a ConfigurationError
func IsConfiguration(err error) bool {
	var configuration *ConfigurationError
	return errors.As(err, &configuration)
}

// IsConflict checks if an error is a ConflictError
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsTransient checks if an error is retryable
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsReferenced checks if an error is a dependency-conflict rejection
// ("component is referenced by other components")
func IsReferenced(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent) && permanent.Referenced
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
// Returns "UNKNOWN_ERROR" if the error doesn't implement AppError
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToResponse converts an error to an ErrorResponse
func ToResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
}
