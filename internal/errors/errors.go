package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType classifies a failure reported by the platform and allocator layers
type ErrorType string

const (
	// ErrorTypeUnsupported means the NUMA or affinity facility is missing on this platform/build
	ErrorTypeUnsupported ErrorType = "unsupported"
	// ErrorTypeInvalidArgument means a CPU or node index is outside the current topology
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	// ErrorTypeDeviceNotFound means the CPU count query returned zero
	ErrorTypeDeviceNotFound ErrorType = "device_not_found"
	// ErrorTypeResourceUnavailable means no isolated CPU could be handed out
	ErrorTypeResourceUnavailable ErrorType = "resource_unavailable"
	// ErrorTypeOS means the native affinity/NUMA call failed; Cause holds the OS error
	ErrorTypeOS ErrorType = "os"
	// ErrorTypeConfiguration means the tool configuration is invalid
	ErrorTypeConfiguration ErrorType = "configuration"
)

// Sentinels for errors.Is. Any StructuredError of the same Type matches.
var (
	ErrUnsupported         = sentinel(ErrorTypeUnsupported, "feature unsupported on this platform")
	ErrInvalidArgument     = sentinel(ErrorTypeInvalidArgument, "invalid argument")
	ErrDeviceNotFound      = sentinel(ErrorTypeDeviceNotFound, "no such device")
	ErrResourceUnavailable = sentinel(ErrorTypeResourceUnavailable, "resource temporarily unavailable")
	ErrOS                  = sentinel(ErrorTypeOS, "operating system call failed")
	ErrConfiguration       = sentinel(ErrorTypeConfiguration, "invalid configuration")
)

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

func sentinel(errType ErrorType, message string) *StructuredError {
	return &StructuredError{Type: errType, Message: message}
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a sentinel of the same type.
// Unsupported errors also match the standard library's errors.ErrUnsupported.
func (e *StructuredError) Is(target error) bool {
	if target == errors.ErrUnsupported {
		return e.Type == ErrorTypeUnsupported
	}
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Operation == "" && t.Type == e.Type
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}

	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// TypeOf returns the ErrorType carried by err, or "" when err is not structured
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Type
	}
	return ""
}

// captureStack captures the current stack trace
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, this function and the constructor
	return pcs[:n]
}

// NewUnsupportedError creates an unsupported-feature error
func NewUnsupportedError(operation, message string) *StructuredError {
	return New(ErrorTypeUnsupported, operation, message)
}

// NewInvalidArgumentError creates an invalid-argument error
func NewInvalidArgumentError(operation, message string) *StructuredError {
	return New(ErrorTypeInvalidArgument, operation, message)
}

// NewDeviceNotFoundError creates a device-not-found error
func NewDeviceNotFoundError(operation, message string) *StructuredError {
	return New(ErrorTypeDeviceNotFound, operation, message)
}

// NewResourceUnavailableError creates a resource-unavailable error
func NewResourceUnavailableError(operation, message string) *StructuredError {
	return New(ErrorTypeResourceUnavailable, operation, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(operation, message string) *StructuredError {
	return New(ErrorTypeConfiguration, operation, message)
}

// WrapOSError wraps a native OS error (errno, Win32 error) unchanged as Cause
func WrapOSError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeOS, operation, message)
}
