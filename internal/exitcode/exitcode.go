package exitcode

import (
	"os"
	"strings"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition, including a failing
	// baseline ("max") or floor ("min") run
	GeneralError = 1

	// JointFailure indicates that every dependency passed at its own floor
	// but the combined floor set failed
	JointFailure = 2

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 3

	// ResolutionError indicates the version catalog could not be built
	ResolutionError = 4

	// NetworkError indicates a network connectivity issue
	NetworkError = 5

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch {
	case perrors.HasCode(err, perrors.ErrCodeCatalogNoCandidates),
		perrors.HasCode(err, perrors.ErrCodeCatalogInvalidReq),
		perrors.HasCode(err, perrors.ErrCodeRegistryNotFound):
		return ResolutionError
	case perrors.HasCode(err, perrors.ErrCodeRegistryNetwork):
		return NetworkError
	case perrors.HasCode(err, perrors.ErrCodeConfigInvalid),
		perrors.HasCode(err, perrors.ErrCodeEnvUnknownRunner):
		return UsageError
	}

	errMsg := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errMsg, "network") || strings.Contains(errMsg, "connection") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	// Usage errors
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts 1 arg") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case JointFailure:
		return "Combined minimal versions failed"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ResolutionError:
		return "Version resolution error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
