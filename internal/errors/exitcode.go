package errors

import "errors"

// Process exit codes.
const (
	ExitCodeSuccess    = 0
	ExitCodeBuildError = 1
	ExitCodeUsageError = 2
	ExitCodeSecurity   = 3
)

// ExitCode classifies err into a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var ue *UnifyError
	if !errors.As(err, &ue) {
		return ExitCodeBuildError
	}

	switch ue.Type {
	case ErrorTypeSecurity:
		return ExitCodeSecurity
	case ErrorTypeConfig, ErrorTypeValidation:
		return ExitCodeUsageError
	default:
		return ExitCodeBuildError
	}
}
