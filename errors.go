package rhi

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every backend. Backends wrap these sentinels so
// callers can classify failures with errors.Is.
var (
	// ErrNotFound is returned when a handle does not resolve to a live resource.
	ErrNotFound = errors.New("rhi: resource not found")

	// ErrExhausted is returned when a handle table or descriptor pool has no
	// capacity left.
	ErrExhausted = errors.New("rhi: resource exhausted")

	// ErrNativeCall is returned when the underlying graphics API rejects a request.
	ErrNativeCall = errors.New("rhi: native call failed")

	// ErrTimeout is returned when a bounded wait (fence, image acquire) expires.
	ErrTimeout = errors.New("rhi: timeout")

	// ErrIO is returned when shader bytecode cannot be read.
	ErrIO = errors.New("rhi: io failure")

	// ErrInvalidArgument is returned for requests that can never succeed,
	// such as a pipeline without attachments.
	ErrInvalidArgument = errors.New("rhi: invalid argument")

	// ErrNoSurface is returned by swapchain operations on a headless backend.
	ErrNoSurface = errors.New("rhi: no presentation surface")

	// ErrDestroyed is returned by a backend after Destroy.
	ErrDestroyed = errors.New("rhi: backend destroyed")
)

// NativeError records a failed native operation.
type NativeError struct {
	Op  string
	Err error
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("rhi: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrNativeCall and the driver error.
func (e *NativeError) Unwrap() []error {
	return []error{ErrNativeCall, e.Err}
}

// Native wraps a driver error for op. It returns nil if err is nil.
func Native(op string, err error) error {
	if err == nil {
		return nil
	}
	return &NativeError{Op: op, Err: err}
}

// ShaderStage names a programmable pipeline stage.
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", uint8(s))
	}
}

// ShaderError reports which stage failed during pipeline creation.
type ShaderError struct {
	Stage ShaderStage
	Path  string
	Err   error
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("rhi: %s shader %q: %v", e.Stage, e.Path, e.Err)
}

func (e *ShaderError) Unwrap() error { return e.Err }
