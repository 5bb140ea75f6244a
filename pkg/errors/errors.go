// Package errors provides the unified error type and factory functions for the
// CRO marketplace core.  Every layer (domain, application, infrastructure,
// interfaces) uses AppError as the single carrier for structured error
// information, enabling consistent HTTP responses, logging, and metrics.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		// Trim standard-library noise to keep traces readable.
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError: the canonical platform error type
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the single structured error type used throughout the platform.
// It satisfies the standard error interface and supports Go 1.13+ error
// wrapping so that errors.Is / errors.As / errors.Unwrap work transparently
// across layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeInvalidTransition, "cannot approve a draft")
//	return errors.Wrap(repoErr, errors.CodeDBQueryError, "failed to load submission")
//	return errors.MalformedStructure("unclosed ring bond").WithDetail("row=42")
type AppError struct {
	// Code is the typed error code that uniquely identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description of the error, suitable
	// for inclusion in API responses returned to callers.
	Message string

	// Detail carries supplementary context (row numbers, entity ids, conflicting
	// states) that aids debugging without leaking internals to end users.
	Detail string

	// Cause is the underlying error that triggered this AppError.
	Cause error

	// Stack contains the formatted call-stack captured at creation.  It is not
	// included in Error() output; structured logging middleware reads it directly.
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>"; detail omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error, enabling errors.Is and errors.As
// to traverse the full error chain.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// It is safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Factory functions
// ─────────────────────────────────────────────────────────────────────────────

// New constructs a fresh AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf constructs a fresh AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.
// If err is nil, Wrap returns nil so it can be used inline.
// When err is already an *AppError and code is the zero value, the original
// code is preserved so the domain classification survives cross-layer
// propagation.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == "" {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		} else {
			code = ErrCodeInternal
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error-chain inspection helpers
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether any error in err's chain carries a not-found code.
func IsNotFound(err error) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			switch ae.Code {
			case CodeNotFound, ErrCodeMoleculeNotFound, ErrCodeSubmissionNotFound,
				ErrCodePredictionJobNotFound, ErrCodeResultSetNotFound:
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsConcurrentModification reports whether err is an optimistic-lock loss;
// callers should re-read state and decide whether to retry.
func IsConcurrentModification(err error) bool {
	return IsCode(err, ErrCodeConcurrentModification)
}

// GetCode extracts the ErrorCode from the first *AppError found in err's
// chain.  If no *AppError is present, ErrCodeInternal is returned so that
// metric labels and HTTP mapping always have a value.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

// ─────────────────────────────────────────────────────────────────────────────
// Convenience factories for the most common conditions
// ─────────────────────────────────────────────────────────────────────────────

// NotFound constructs a CodeNotFound AppError.  Prefer the domain-specific
// variants (ErrCodeMoleculeNotFound, ErrCodeSubmissionNotFound) in repository
// layers; this generic form is for router/middleware code.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Stack: captureStack(1)}
}

// InvalidParam constructs a CodeInvalidParam AppError.
func InvalidParam(message string) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: message, Stack: captureStack(1)}
}

// Internal constructs a CodeInternal AppError.  Always log the underlying
// cause before or after calling Internal.
func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Stack: captureStack(1)}
}

// Forbidden constructs a CodeForbidden AppError.
func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Stack: captureStack(1)}
}

// MalformedStructure constructs an ErrCodeMalformedStructure AppError.
func MalformedStructure(message string) *AppError {
	return &AppError{Code: ErrCodeMalformedStructure, Message: message, Stack: captureStack(1)}
}

// PolicyViolation constructs an ErrCodePolicyViolation AppError.
func PolicyViolation(message string) *AppError {
	return &AppError{Code: ErrCodePolicyViolation, Message: message, Stack: captureStack(1)}
}

// DuplicateInBatch constructs an ErrCodeDuplicateInBatch AppError.
func DuplicateInBatch(message string) *AppError {
	return &AppError{Code: ErrCodeDuplicateInBatch, Message: message, Stack: captureStack(1)}
}

// InvalidTransition constructs an ErrCodeInvalidTransition AppError naming the
// illegal edge.
func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("transition %s -> %s is not legal", from, to),
		Stack:   captureStack(1),
	}
}

// InvalidState constructs an ErrCodeInvalidState AppError.
func InvalidState(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidState, Message: message, Stack: captureStack(1)}
}

// UnknownMolecule constructs an ErrCodeUnknownMolecule AppError.
func UnknownMolecule(message string) *AppError {
	return &AppError{Code: ErrCodeUnknownMolecule, Message: message, Stack: captureStack(1)}
}

// ConcurrentModification constructs an ErrCodeConcurrentModification AppError.
func ConcurrentModification(message string) *AppError {
	return &AppError{Code: ErrCodeConcurrentModification, Message: message, Stack: captureStack(1)}
}

// ExternalCallFailure constructs a retryable ErrCodeExternalCallFailure AppError.
func ExternalCallFailure(message string) *AppError {
	return &AppError{Code: ErrCodeExternalCallFailure, Message: message, Stack: captureStack(1)}
}

// ExternalCallExhausted constructs a terminal ErrCodeExternalCallExhausted AppError.
func ExternalCallExhausted(message string) *AppError {
	return &AppError{Code: ErrCodeExternalCallExhausted, Message: message, Stack: captureStack(1)}
}
