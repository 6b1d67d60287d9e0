package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrConflict     = fmt.Errorf("conflicting operation in progress")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrThrottled    = fmt.Errorf("request throttled")
	ErrAuthInvalid  = fmt.Errorf("authentication failed")
)

// Lifecycle and invocation sentinels.
var (
	ErrRemoteUnavailable = fmt.Errorf("remote control plane unavailable")
	ErrLifecycleTimeout  = fmt.Errorf("resource did not reach a terminal status")
	ErrLifecycleFailed   = fmt.Errorf("resource reported a failure status")
	ErrInvocation        = fmt.Errorf("agent invocation failed")
	ErrOrderViolation    = fmt.Errorf("dependency order violated")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrAuditWrite        = fmt.Errorf("audit log write failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Poller.AwaitTerminal")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for logs and audit records.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeThrottled         ErrorCode = "THROTTLED"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	CodeLifecycleTimeout  ErrorCode = "LIFECYCLE_TIMEOUT"
	CodeLifecycleFailed   ErrorCode = "LIFECYCLE_FAILED"
	CodeInvocation        ErrorCode = "INVOCATION_ERROR"
	CodeOrderViolation    ErrorCode = "ORDER_VIOLATION"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeAuditWrite        ErrorCode = "AUDIT_WRITE"
)

// errorCodeOrder lists sentinels from most to least specific. An invocation
// failure caused by a throttled request reports INVOCATION_ERROR, not THROTTLED.
var errorCodeOrder = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvocation, CodeInvocation},
	{ErrLifecycleTimeout, CodeLifecycleTimeout},
	{ErrLifecycleFailed, CodeLifecycleFailed},
	{ErrOrderViolation, CodeOrderViolation},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrAuditWrite, CodeAuditWrite},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
	{ErrConflict, CodeConflict},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrThrottled, CodeThrottled},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrRemoteUnavailable, CodeRemoteUnavailable},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, e := range errorCodeOrder {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}
