package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/pql/internal/plan"
)

// Compile error codes (E200-E299)
const (
	CodeNoStrategy      = "E201" // no strategy matches the operator
	CodeTypeMismatch    = "E202" // operand types statically incompatible
	CodeUnknownFunction = "E203" // no function registered under the name
	CodeInvalidPlan     = "E204" // plan fails structural validation
	CodeUnsupported     = "E205" // operator configuration not supported
	CodeStrategyFailed  = "E206" // strategy returned an error or a wrong-kind result
)

// PError is a compile-time problem with a logical plan.
type PError struct {
	Code    string
	Message string
	// Operator is the offending node, or nil for plan-level errors.
	Operator plan.Operator
}

// Error implements the error interface.
func (e *PError) Error() string {
	if e.Operator != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Code, plan.Label(e.Operator), e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func perr(code string, op plan.Operator, format string, args ...any) *PError {
	return &PError{Code: code, Message: fmt.Sprintf(format, args...), Operator: op}
}

// IsNoStrategy reports whether err is, or wraps, a PError with
// CodeNoStrategy.
func IsNoStrategy(err error) bool {
	return hasCode(err, CodeNoStrategy)
}

// IsTypeMismatch reports whether err is, or wraps, a PError with
// CodeTypeMismatch.
func IsTypeMismatch(err error) bool {
	return hasCode(err, CodeTypeMismatch)
}

func hasCode(err error, code string) bool {
	var pe *PError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// ErrorListener receives compile errors as they are found. Returning a
// non-nil error aborts compilation with that error; returning nil lets
// compilation continue, and Prepare fails once the whole plan was visited.
type ErrorListener interface {
	OnError(e *PError) error
}

// AbortListener aborts compilation on the first error. It is the default.
type AbortListener struct{}

// OnError returns e.
func (AbortListener) OnError(e *PError) error { return e }

// CollectingListener records every error and lets compilation visit the
// whole plan, so all problems are reported at once.
//
// Not safe for concurrent use; use one listener per Prepare call.
type CollectingListener struct {
	errs []*PError
}

// OnError records e.
func (l *CollectingListener) OnError(e *PError) error {
	l.errs = append(l.errs, e)
	return nil
}

// Errors returns the recorded errors in the order they were found.
func (l *CollectingListener) Errors() []*PError {
	return append([]*PError(nil), l.errs...)
}
