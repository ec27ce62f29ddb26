// Package errors provides the structured error type used across unify,
// along with exit-code classification for the command line.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodePathTraversal    = "ERR_PATH_TRAVERSAL"
	ErrCodeCircularImport   = "ERR_CIRCULAR_IMPORT"
	ErrCodeMaxDepth         = "ERR_MAX_DEPTH"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeLayoutMissing    = "ERR_LAYOUT_MISSING"
	ErrCodeBuildFailed      = "ERR_BUILD_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeIO               = "ERR_IO"
	ErrCodeSecurityIssue    = "ERR_SECURITY_ISSUE"
	ErrCodeInternalError    = "ERR_INTERNAL"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
)

// UnifyError is a structured error type with context.
type UnifyError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Line        int
	Recoverable bool
}

// Error implements the error interface.
func (e *UnifyError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *UnifyError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *UnifyError) Is(target error) bool {
	var t *UnifyError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *UnifyError) WithContext(key string, value interface{}) *UnifyError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *UnifyError) WithLocation(filePath string, line int) *UnifyError {
	e.FilePath = filePath
	e.Line = line

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *UnifyError {
	return &UnifyError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *UnifyError {
	return &UnifyError{
		Type:    ErrorTypeSecurity,
		Code:    code,
		Message: message,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *UnifyError {
	return &UnifyError{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *UnifyError {
	return &UnifyError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *UnifyError {
	return &UnifyError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *UnifyError {
	return &UnifyError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrPathTraversal creates a path traversal security error.
func ErrPathTraversal(path string) *UnifyError {
	return NewSecurityError(ErrCodePathTraversal, "path traversal attempt: "+path)
}

// ErrCircularImport creates a circular import error naming the whole chain.
func ErrCircularImport(chain []string) *UnifyError {
	return NewBuildError(
		ErrCodeCircularImport,
		"circular import detected: "+strings.Join(chain, " -> "),
		nil,
	).WithContext("chain", chain)
}

// ErrMaxDepth creates a maximum depth error.
func ErrMaxDepth(path string, limit int) *UnifyError {
	return NewBuildError(
		ErrCodeMaxDepth,
		fmt.Sprintf("maximum depth exceeded (%d) while processing %s", limit, path),
		nil,
	).WithContext("limit", limit)
}

// ErrLayoutMissing creates a recoverable error for a missing layout or component.
func ErrLayoutMissing(path, referencedBy string) *UnifyError {
	return &UnifyError{
		Type:        ErrorTypeBuild,
		Code:        ErrCodeLayoutMissing,
		Message:     "layout or component not found: " + path,
		FilePath:    referencedBy,
		Recoverable: true,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ue *UnifyError
	if errors.As(err, &ue) {
		return ue.Recoverable
	}

	return false
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	var ue *UnifyError
	if errors.As(err, &ue) {
		return ue.Type == ErrorTypeSecurity
	}

	return false
}

// IsCircularImport reports whether err is a circular import failure.
func IsCircularImport(err error) bool {
	return hasCode(err, ErrCodeCircularImport)
}

// IsMaxDepth reports whether err is a depth limit failure.
func IsMaxDepth(err error) bool {
	return hasCode(err, ErrCodeMaxDepth)
}

func hasCode(err error, code string) bool {
	var ue *UnifyError
	if errors.As(err, &ue) {
		return ue.Code == code
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var ue *UnifyError
	if !errors.As(err, &ue) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch {
	case ue.Type == ErrorTypeSecurity:
		h.logger.Error(ctx, ue, "Security error occurred",
			"type", ue.Type,
			"code", ue.Code,
			"file", ue.FilePath)
	case ue.Recoverable:
		h.logger.Warn(ctx, ue, "Recoverable error occurred",
			"type", ue.Type,
			"code", ue.Code,
			"file", ue.FilePath)
	default:
		h.logger.Error(ctx, ue, "Error occurred",
			"type", ue.Type,
			"code", ue.Code,
			"file", ue.FilePath)
	}
}
