package errors

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// FileError records a failure tied to a single source file during a build.
type FileError struct {
	File      string
	Message   string
	Severity  ErrorSeverity
	Timestamp time.Time
	Cause     error
}

// NewFileError attributes err to file. Security failures are fatal and
// recoverable ones are warnings.
func NewFileError(file string, err error) FileError {
	severity := ErrorSeverityError
	var ue *UnifyError
	if errors.As(err, &ue) {
		switch {
		case ue.Type == ErrorTypeSecurity:
			severity = ErrorSeverityFatal
		case ue.Recoverable:
			severity = ErrorSeverityWarning
		}
	}
	return FileError{
		File:      file,
		Message:   err.Error(),
		Severity:  severity,
		Timestamp: time.Now(),
		Cause:     err,
	}
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (fe *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %s", fe.File, fe.Severity, fe.Message)
}

// Unwrap returns the underlying failure.
func (fe *FileError) Unwrap() error { return fe.Cause }

// ErrorCollector collects per-file errors across one build.
type ErrorCollector struct {
	fileErrors []FileError
	mutex      sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{fileErrors: make([]FileError, 0)}
}

// Add adds a file error to the collector
func (ec *ErrorCollector) Add(err FileError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	ec.fileErrors = append(ec.fileErrors, err)
}

// GetErrors returns all collected file errors
func (ec *ErrorCollector) GetErrors() []FileError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]FileError, len(ec.fileErrors))
	copy(result, ec.fileErrors)
	return result
}

// GetAllErrors returns the collected file errors as plain errors.
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	allErrors := make([]error, 0, len(ec.fileErrors))
	for i := range ec.fileErrors {
		fe := ec.fileErrors[i]
		allErrors = append(allErrors, &fe)
	}
	return allErrors
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.fileErrors) > 0
}
