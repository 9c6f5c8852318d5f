package errors

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError_Error(t *testing.T) {
	// Test error without cause
	err := New(ErrorTypeInvalidArgument, "bind_thread", "cpu index out of range")
	expected := "[invalid_argument] bind_thread: cpu index out of range"
	assert.Equal(t, expected, err.Error())

	// Test error with cause
	cause := errors.New("underlying error")
	err = Wrap(cause, ErrorTypeOS, "mbind", "failed to bind pages")
	assert.Contains(t, err.Error(), "[os] mbind: failed to bind pages")
	assert.Contains(t, err.Error(), "underlying error")
	assert.Equal(t, cause, err.Unwrap())
}

func TestSentinelError_Message(t *testing.T) {
	assert.Equal(t, "[resource_unavailable] resource temporarily unavailable", ErrResourceUnavailable.Error())
}

func TestStructuredError_WithContext(t *testing.T) {
	err := New(ErrorTypeInvalidArgument, "allocate_on_node", "node out of range")
	err = err.WithContext("node", 5).WithContext("node_count", 2)

	assert.Equal(t, 5, err.Context["node"])
	assert.Equal(t, 2, err.Context["node_count"])
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrorTypeUnsupported, NewUnsupportedError("op", "msg").Type)
	assert.Equal(t, ErrorTypeInvalidArgument, NewInvalidArgumentError("op", "msg").Type)
	assert.Equal(t, ErrorTypeDeviceNotFound, NewDeviceNotFoundError("op", "msg").Type)
	assert.Equal(t, ErrorTypeResourceUnavailable, NewResourceUnavailableError("op", "msg").Type)
	assert.Equal(t, ErrorTypeConfiguration, NewConfigurationError("op", "msg").Type)
}

func TestErrorsIs_MatchesSentinelByType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unsupported", NewUnsupportedError("op", "msg"), ErrUnsupported},
		{"invalid argument", NewInvalidArgumentError("op", "msg"), ErrInvalidArgument},
		{"device not found", NewDeviceNotFoundError("op", "msg"), ErrDeviceNotFound},
		{"resource unavailable", NewResourceUnavailableError("op", "msg"), ErrResourceUnavailable},
		{"os", WrapOSError(syscall.EINVAL, "op", "msg"), ErrOS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.NotErrorIs(t, tt.err, ErrConfiguration)
		})
	}
}

func TestErrorsIs_StdlibUnsupported(t *testing.T) {
	assert.ErrorIs(t, NewUnsupportedError("get_current_cpu", "no getcpu"), errors.ErrUnsupported)
	assert.NotErrorIs(t, NewInvalidArgumentError("op", "msg"), errors.ErrUnsupported)
}

func TestWrapOSError_PreservesErrno(t *testing.T) {
	err := WrapOSError(syscall.EPERM, "sched_setaffinity", "failed to set affinity")
	require.NotNil(t, err)

	var errno syscall.Errno
	require.True(t, errors.As(err, &errno))
	assert.Equal(t, syscall.EPERM, errno)

	// Wrapping nil yields nil
	assert.Nil(t, WrapOSError(nil, "op", "msg"))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeDeviceNotFound, TypeOf(NewDeviceNotFoundError("cpu_count", "zero cpus")))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestStackTraceCapture(t *testing.T) {
	err := New(ErrorTypeInvalidArgument, "test", "message")
	// Should have captured some stack frames
	assert.Greater(t, len(err.Stack), 0)
}
