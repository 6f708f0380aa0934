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
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeTool       ErrorType = "tool"
	ErrorTypeInternal   ErrorType = "internal"
)

// Sentinel errors for the failure modes callers branch on. Match them with
// errors.Is; the structured errors below unwrap to them.
var (
	ErrManifestNotFound = errors.New("package manifest not found")
	ErrManifestParse    = errors.New("package manifest is not valid JSON")
	ErrManifestInvalid  = errors.New("package manifest is invalid")
	ErrNoEntryPoints    = errors.New("no entry points found")
	ErrToolMissing      = errors.New("tool not installed")
	ErrTargetExists     = errors.New("target directory already exists")
)

// TspackError is a structured error type with context.
type TspackError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Tool        string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *TspackError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Tool != "" {
		parts = append(parts, "tool:"+e.Tool)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
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
func (e *TspackError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TspackError) Is(target error) bool {
	var t *TspackError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *TspackError) WithContext(key string, value interface{}) *TspackError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *TspackError) WithLocation(filePath string, line, column int) *TspackError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithTool attributes the error to the external tool or plugin that produced it.
func (e *TspackError) WithTool(tool string) *TspackError {
	e.Tool = tool

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *TspackError {
	return &TspackError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error. Configuration errors are
// fatal: they are raised before any job runs.
func NewConfigError(code, message string, cause error) *TspackError {
	return &TspackError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *TspackError {
	return &TspackError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *TspackError {
	return &TspackError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewToolError creates an error for a failed or missing external tool.
// Missing tools are recoverable: the sub-step is skipped with a warning.
func NewToolError(tool, code, message string, cause error) *TspackError {
	return &TspackError{
		Type:        ErrorTypeTool,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Tool:        tool,
		Recoverable: errors.Is(cause, ErrToolMissing),
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TspackError {
	return &TspackError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *TspackError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	var te *TspackError
	if errors.As(err, &te) {
		return te.Type == ErrorTypeConfig
	}

	return errors.Is(err, ErrManifestNotFound) ||
		errors.Is(err, ErrManifestParse) ||
		errors.Is(err, ErrManifestInvalid) ||
		errors.Is(err, ErrNoEntryPoints)
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

// Handle logs an error at the level its type calls for.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *TspackError
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch te.Type {
	case ErrorTypeBuild:
		h.logger.Error(ctx, te, "Build job failed",
			"code", te.Code,
			"tool", te.Tool,
			"file", te.FilePath)
	case ErrorTypeTool:
		if te.Recoverable {
			h.logger.Warn(ctx, te, "Skipping step, tool unavailable", "tool", te.Tool)
			return
		}
		h.logger.Error(ctx, te, "Tool invocation failed", "tool", te.Tool)
	case ErrorTypeValidation:
		h.logger.Warn(ctx, te, "Validation error occurred", "code", te.Code)
	default:
		h.logger.Error(ctx, te, "Error occurred",
			"type", te.Type,
			"code", te.Code)
	}
}

// Common error codes.
const (
	ErrCodeManifestNotFound = "ERR_MANIFEST_NOT_FOUND"
	ErrCodeManifestParse    = "ERR_MANIFEST_PARSE"
	ErrCodeManifestInvalid  = "ERR_MANIFEST_INVALID"
	ErrCodeNoEntryPoints    = "ERR_NO_ENTRY_POINTS"
	ErrCodeExportsMalformed = "ERR_EXPORTS_MALFORMED"
	ErrCodeBuildFailed      = "ERR_BUILD_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeWriteFailed      = "ERR_WRITE_FAILED"
	ErrCodeToolMissing      = "ERR_TOOL_MISSING"
	ErrCodeToolFailed       = "ERR_TOOL_FAILED"
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodeInvalidCommand   = "ERR_INVALID_COMMAND"
	ErrCodeTargetExists     = "ERR_TARGET_EXISTS"
)
