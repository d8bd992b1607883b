package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Catalog errors (CATALOG-001 to CATALOG-099)
	ErrCodeCatalogNoCandidates ErrorCode = "CATALOG-001"
	ErrCodeCatalogInvalidReq   ErrorCode = "CATALOG-002"
	ErrCodeCatalogMarker       ErrorCode = "CATALOG-003"

	// Registry errors (REGISTRY-001 to REGISTRY-099)
	ErrCodeRegistryNotFound ErrorCode = "REGISTRY-001"
	ErrCodeRegistryNetwork  ErrorCode = "REGISTRY-002"
	ErrCodeRegistryDecode   ErrorCode = "REGISTRY-003"
	ErrCodeRegistryCache    ErrorCode = "REGISTRY-004"

	// Environment errors (ENV-001 to ENV-099)
	ErrCodeEnvProvision     ErrorCode = "ENV-001"
	ErrCodeEnvInstall       ErrorCode = "ENV-002"
	ErrCodeEnvCommand       ErrorCode = "ENV-003"
	ErrCodeEnvDockerMissing ErrorCode = "ENV-004"
	ErrCodeEnvPolicyDenied  ErrorCode = "ENV-005"
	ErrCodeEnvUnknownRunner ErrorCode = "ENV-006"

	// Project declaration errors (PROJECT-001 to PROJECT-099)
	ErrCodeProjectNotFound ErrorCode = "PROJECT-001"
	ErrCodeProjectInvalid  ErrorCode = "PROJECT-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
)

// PessimistError represents an enhanced error with code, suggestions, and documentation
type PessimistError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *PessimistError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *PessimistError) Unwrap() error {
	return e.Cause
}

// New creates a new PessimistError
func New(code ErrorCode, message string) *PessimistError {
	return &PessimistError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new PessimistError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *PessimistError {
	return &PessimistError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *PessimistError) WithSuggestion(suggestion string) *PessimistError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *PessimistError) WithSuggestions(suggestions ...string) *PessimistError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *PessimistError) WithDocs(url string) *PessimistError {
	e.DocsURL = url
	return e
}

// HasCode reports whether err (or anything it wraps) is a PessimistError with the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(*PessimistError); ok && pe.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Common error constructors for frequently used errors

// NewNoCandidatesError creates a resolution error for a requirement that matched no versions
func NewNoCandidatesError(requirement string, known int) *PessimistError {
	return New(ErrCodeCatalogNoCandidates,
		fmt.Sprintf("no versions of %s satisfy the requirement (%d known)", requirement, known)).
		WithSuggestion("The package may only publish pre-releases; widen the bound or use --extend").
		WithSuggestion("The registry cache may be stale; rerun with --refresh")
}

// NewInvalidRequirementError creates a requirement parse error
func NewInvalidRequirementError(line string, cause error) *PessimistError {
	return Wrap(ErrCodeCatalogInvalidReq, fmt.Sprintf("invalid requirement %q", line), cause).
		WithSuggestion("Requirements must look like name[extras] specifier ; marker")
}

// NewPackageNotFoundError creates a registry not found error
func NewPackageNotFoundError(name string) *PessimistError {
	return New(ErrCodeRegistryNotFound, fmt.Sprintf("package not found on index: %s", name)).
		WithSuggestion("Check the spelling of the requirement").
		WithSuggestion("Use --index-url if the package lives on a private index")
}

// NewRegistryNetworkError creates a registry connectivity error
func NewRegistryNetworkError(name string, cause error) *PessimistError {
	return Wrap(ErrCodeRegistryNetwork, fmt.Sprintf("failed to query index for %s", name), cause).
		WithSuggestion("Check network connectivity to the package index").
		WithSuggestion("Cached results are used when available; drop --refresh to use them")
}

// NewDockerNotAvailableError creates a Docker not available error
func NewDockerNotAvailableError(cause error) *PessimistError {
	return Wrap(ErrCodeEnvDockerMissing, "Docker is not available", cause).
		WithSuggestion("Install Docker Engine and make sure the daemon is running").
		WithSuggestion("Use --runner venv to test in local virtual environments").
		WithDocs("https://docs.docker.com/get-docker/")
}

// NewProvisionError creates an environment provisioning error
func NewProvisionError(runner string, cause error) *PessimistError {
	return Wrap(ErrCodeEnvProvision, fmt.Sprintf("failed to create %s environment", runner), cause).
		WithSuggestion("Check that the configured interpreter (--python) or image (--image) exists")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *PessimistError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *PessimistError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
