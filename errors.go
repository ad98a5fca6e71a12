package transport

import (
	"errors"
	"fmt"
	"syscall"
)

// Code represents a high-level error category surfaced through runtime ports.
type Code string

const (
	CodeAllocationExhausted Code = "allocation exhausted"
	CodeRingFull            Code = "ring full"
	CodeWouldBlock          Code = "would block"
	CodeCanceled            Code = "canceled"
	CodeTimeout             Code = "timeout"
	CodeHardKernelError     Code = "hard kernel error"
	CodeShutdown            Code = "shutdown"
	CodeInvalidParameters   Code = "invalid parameters"
)

// Error is a structured transport error carrying the operation, the fd it
// concerns (if any), a high-level Code, the originating errno (if any), and
// a wrapped inner error.
type Error struct {
	Op    string
	Fd    int
	Code  Code
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Fd != 0 {
		parts = append(parts, fmt.Sprintf("fd=%d", e.Fd))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("transport: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("transport: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a structured error with no fd context.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewFdError creates a structured error scoped to a file descriptor.
func NewFdError(op string, fd int, code Code, msg string) *Error {
	return &Error{Op: op, Fd: fd, Code: code, Msg: msg}
}

// NewErrnoError creates a structured error from a kernel errno.
func NewErrnoError(op string, fd int, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Fd:    fd,
		Code:  classifyErrno(errno),
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// WrapError wraps an arbitrary error with transport context, preserving
// structured fields when the inner error is already an *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if te, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Fd:    te.Fd,
			Code:  te.Code,
			Errno: te.Errno,
			Msg:   te.Msg,
			Inner: te.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:    op,
			Code:  classifyErrno(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  CodeHardKernelError,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// classifyErrno maps a CQE res errno to a high-level transport error code,
// per the classification in the error handling design: cancellation,
// timeout, would-block, invalid parameters, or hard.
func classifyErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.ECANCELED:
		return CodeCanceled
	case syscall.ETIMEDOUT:
		return CodeTimeout
	case syscall.EAGAIN:
		return CodeWouldBlock
	case syscall.EINVAL, syscall.E2BIG:
		return CodeInvalidParameters
	default:
		return CodeHardKernelError
	}
}

// IsCode reports whether err (or any error it wraps) carries the given code.
func IsCode(err error, code Code) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsErrno reports whether err (or any error it wraps) carries the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Errno == errno
	}
	return false
}
