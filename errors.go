package bdbmq

import (
	"errors"
	"fmt"
)

// DispatchError represents a structured dispatcher error with context.
type DispatchError struct {
	Op    string            // Operation that failed (e.g., "Submit", "Close")
	PU    int               // Parallel unit index (-1 if not applicable)
	Code  DispatchErrorCode // High-level error category
	Msg   string            // Human-readable message
	Inner error             // Wrapped error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.PU >= 0 {
		parts = append(parts, fmt.Sprintf("pu=%d", e.PU))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("bdbmq: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("bdbmq: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DispatchError) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison against both DispatchErrorCode sentinels
// and other *DispatchError values by code.
func (e *DispatchError) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(DispatchErrorCode); ok {
		return e.Code == code
	}
	if te, ok := target.(*DispatchError); ok {
		return e.Code == te.Code
	}
	return false
}

// DispatchErrorCode represents high-level error categories.
type DispatchErrorCode string

func (c DispatchErrorCode) Error() string { return string(c) }

const (
	ErrCodeNotRunning       DispatchErrorCode = "dispatcher not running"
	ErrCodeAlreadyClosed    DispatchErrorCode = "dispatcher already closed"
	ErrCodeInvalidRequest   DispatchErrorCode = "invalid request"
	ErrCodeDeviceRejected   DispatchErrorCode = "device model rejected request"
	ErrCodeFlushTimeout     DispatchErrorCode = "flush deadline exceeded"
	ErrCodeInvalidTopology  DispatchErrorCode = "invalid NAND topology"
	ErrCodeShutdownPending  DispatchErrorCode = "shutdown in progress"
)

// NewError creates a new structured dispatcher error.
func NewError(op string, code DispatchErrorCode, msg string) *DispatchError {
	return &DispatchError{Op: op, PU: -1, Code: code, Msg: msg}
}

// NewPUError creates a new PU-scoped dispatcher error.
func NewPUError(op string, pu int, code DispatchErrorCode, msg string) *DispatchError {
	return &DispatchError{Op: op, PU: pu, Code: code, Msg: msg}
}

// WrapError wraps an existing error with dispatcher context.
func WrapError(op string, code DispatchErrorCode, inner error) *DispatchError {
	if inner == nil {
		return nil
	}
	if de, ok := inner.(*DispatchError); ok {
		return &DispatchError{Op: op, PU: de.PU, Code: de.Code, Msg: de.Msg, Inner: de.Inner}
	}
	return &DispatchError{Op: op, PU: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code DispatchErrorCode) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
