package value

import (
	"errors"
	"fmt"
)

// ErrorType represents the kind of runtime error.
type ErrorType string

const (
	// Fatal errors - the whole project must stop
	ErrorInternal ErrorType = "INTERNAL_ERROR"

	// Process errors - only the failing process terminates
	ErrorMismatch   ErrorType = "TYPE_ERROR"
	ErrorIndex      ErrorType = "INDEX_ERROR"
	ErrorName       ErrorType = "NAME_ERROR"
	ErrorRecursion  ErrorType = "RECURSION_LIMIT"
	ErrorCapability ErrorType = "CAPABILITY_ERROR"
	ErrorExtension  ErrorType = "EXTENSION_ERROR"
	ErrorCustom     ErrorType = "CUSTOM_ERROR"
)

// RuntimeError is an error raised while evaluating a script.
type RuntimeError struct {
	Type    ErrorType
	Message string
	Context string // block or entity the error occurred in, if known
	Err     error  // underlying cause, if any
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("[%s] %s (in %s)", e.Type, e.Message, e.Context)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error must stop the whole project rather
// than only the process that raised it.
func (e *RuntimeError) IsFatal() bool {
	return e.Type == ErrorInternal
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(errType ErrorType, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
	}
}

// Error helper functions for common error types

// NewTypeError creates a type error.
func NewTypeError(format string, args ...any) *RuntimeError {
	return NewRuntimeError(ErrorMismatch, fmt.Sprintf(format, args...))
}

// NewIndexError creates an index out of range error.
func NewIndexError(index int, length int) *RuntimeError {
	return NewRuntimeError(ErrorIndex, fmt.Sprintf("index %d out of range (length %d)", index, length))
}

// NewNameError creates an undefined name error.
func NewNameError(name string) *RuntimeError {
	return NewRuntimeError(ErrorName, fmt.Sprintf("undefined: %s", name))
}

// NewRecursionLimitError creates a call depth error.
func NewRecursionLimitError(depth, limit int) *RuntimeError {
	return NewRuntimeError(ErrorRecursion, fmt.Sprintf("call depth %d exceeds maximum %d", depth, limit))
}

// NewCapabilityError wraps a failure reported by the capability host.
func NewCapabilityError(op string, err error) *RuntimeError {
	return &RuntimeError{
		Type:    ErrorCapability,
		Message: fmt.Sprintf("%s: %v", op, err),
		Err:     err,
	}
}

// NewExtensionError wraps a failure reported by a host extension.
func NewExtensionError(name string, err error) *RuntimeError {
	return &RuntimeError{
		Type:    ErrorExtension,
		Message: fmt.Sprintf("%s: %v", name, err),
		Err:     err,
	}
}

// NewCustomError creates an error thrown by a script.
func NewCustomError(message string) *RuntimeError {
	return NewRuntimeError(ErrorCustom, message)
}

// NewInternalError creates a fatal engine error.
func NewInternalError(format string, args ...any) *RuntimeError {
	return NewRuntimeError(ErrorInternal, fmt.Sprintf(format, args...))
}

// AsRuntimeError converts any error into a RuntimeError. Errors that are
// not already RuntimeErrors become type errors.
func AsRuntimeError(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	var rt *RuntimeError
	if errors.As(err, &rt) {
		return rt
	}
	return &RuntimeError{Type: ErrorMismatch, Message: err.Error(), Err: err}
}

// IsType reports whether err is a RuntimeError of the given type.
func IsType(err error, t ErrorType) bool {
	var rt *RuntimeError
	return errors.As(err, &rt) && rt.Type == t
}
