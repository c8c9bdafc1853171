// Package errors provides structured error types for overclock.
//
// Every failure that crosses a stage boundary (catalog ingestion, rate
// pinning, power allocation, distribution) carries a machine-readable code
// and a message naming the stage that failed, so the CLI and the HTTP API
// can report it consistently.
//
// # Error Codes
//
//   - INVALID_INPUT: bad plan options or unknown recipe/resource names
//   - DATA_INGESTION: a catalog entry is malformed
//   - SOLVER_INFEASIBLE: an engine proved the problem has no solution
//   - SOLVER_ABNORMAL: an engine stopped in any other non-optimal state
//   - APPROXIMATION_MISMATCH: recomputed values disagree with solver estimates
//   - NO_BUILDINGS: a clock total was distributed over zero buildings
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "unknown recipe %q", name)
//	if errors.Is(err, errors.ErrCodeSolverInfeasible) {
//	    // relax constraints and try again
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeDataIngestion Code = "DATA_INGESTION"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Solver errors
	ErrCodeSolverInfeasible      Code = "SOLVER_INFEASIBLE"
	ErrCodeSolverAbnormal        Code = "SOLVER_ABNORMAL"
	ErrCodeApproximationMismatch Code = "APPROXIMATION_MISMATCH"
	ErrCodeNoBuildings           Code = "NO_BUILDINGS"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Infeasible reports that the named stage has no solution under its constraints.
func Infeasible(stage string) *Error {
	return New(ErrCodeSolverInfeasible, "%s: problem is infeasible", stage)
}

// Abnormal reports that the named stage's engine ended in an unexpected state.
func Abnormal(stage string, status fmt.Stringer) *Error {
	return New(ErrCodeSolverAbnormal, "%s: engine finished with status %s", stage, status)
}

// HTTPStatus maps an error code to the HTTP status the API answers with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeDataIngestion, ErrCodeNoBuildings:
		return 400
	case ErrCodeNotFound:
		return 404
	case ErrCodeSolverInfeasible:
		return 422
	case ErrCodeUnsupported:
		return 501
	default:
		return 500
	}
}
