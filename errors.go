package sage

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for specific failure types
const (
	ErrCodePlannerUnavailable = "PLANNER_UNAVAILABLE"
	ErrCodePlanMalformed      = "PLAN_MALFORMED"
	ErrCodeToolNotFound       = "TOOL_NOT_FOUND"
	ErrCodeParamValidation    = "PARAMETER_VALIDATION_ERROR"
	ErrCodeToolExecution      = "TOOL_EXECUTION_ERROR"
	ErrCodeUnsafeCode         = "UNSAFE_GENERATED_CODE"
	ErrCodeNotAutomatable     = "NOT_AUTOMATABLE"
	ErrCodeUnhandled          = "UNHANDLED"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeCancelled          = "EXECUTION_CANCELLED"
	ErrCodeTimeout            = "EXECUTION_TIMEOUT"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// SageError is the engine's error type. Code is machine-readable,
// Stage names the pipeline stage that produced it.
type SageError struct {
	Code    string // machine-readable code (e.g. ErrCodeToolNotFound)
	Stage   string // pipeline stage (e.g. "planning", "execution")
	Message string // human-readable message
	Cause   error  // underlying error, if any
}

// Error implements the error interface.
func (e *SageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause, allowing for error chaining.
func (e *SageError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SageError.
func NewError(code, stage, message string, cause error) *SageError {
	return &SageError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf extracts the SageError code from an error chain, or
// ErrCodeInternal when the chain holds no SageError.
func CodeOf(err error) string {
	var se *SageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// Specific error constructors

func NewPlannerUnavailableError(reason string, cause error) *SageError {
	return NewError(ErrCodePlannerUnavailable, "planning", fmt.Sprintf("planner unavailable: %s", reason), cause)
}

func NewPlanMalformedError(raw string, cause error) *SageError {
	msg := "planner response could not be parsed"
	if raw != "" {
		msg = fmt.Sprintf("planner response could not be parsed (raw: %.120s)", raw)
	}
	return NewError(ErrCodePlanMalformed, "planning", msg, cause)
}

func NewToolNotFoundError(stage, toolName string) *SageError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolName), nil)
}

func NewParamValidationError(toolName string, problems []string) *SageError {
	msg := fmt.Sprintf("invalid parameters for tool '%s': %s", toolName, strings.Join(problems, "; "))
	return NewError(ErrCodeParamValidation, "validation", msg, nil)
}

func NewToolExecutionError(toolName string, cause error) *SageError {
	return NewError(ErrCodeToolExecution, "execution", fmt.Sprintf("execution failed for tool '%s'", toolName), cause)
}

func NewUnsafeCodeError(toolName string, matched []string) *SageError {
	msg := fmt.Sprintf("generated code for '%s' rejected, blocked markers: %s", toolName, strings.Join(matched, ", "))
	return NewError(ErrCodeUnsafeCode, "generation", msg, nil)
}

func NewNotAutomatableError(task string) *SageError {
	return NewError(ErrCodeNotAutomatable, "generation", fmt.Sprintf("task is not automatable: %.80s", task), nil)
}

func NewUnhandledError(utterance string) *SageError {
	return NewError(ErrCodeUnhandled, "fallback", fmt.Sprintf("no rule matched utterance: %.80s", utterance), nil)
}

func NewConfigurationError(message string, cause error) *SageError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *SageError {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewTimeoutError(stage string, cause error) *SageError {
	return NewError(ErrCodeTimeout, stage, "execution timed out", cause)
}

func NewInternalError(stage, message string, cause error) *SageError {
	return NewError(ErrCodeInternal, stage, message, cause)
}
