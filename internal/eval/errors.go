package eval

import (
	"errors"
	"fmt"

	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

var (
	// ErrReopen is returned by Open on a relation that was already opened.
	// Relations are single-use; build a fresh one from its Factory.
	ErrReopen = errors.New("relation already opened")

	// ErrNotOpen is returned by Next before Open or after Close.
	ErrNotOpen = errors.New("relation is not open")

	// ErrTableNotFound is returned when a table reference does not resolve
	// in the session catalog.
	ErrTableNotFound = errors.New("table not found")
)

// TypeCheckError reports a value whose runtime type does not fit the
// operator consuming it, e.g. scanning an INTEGER or adding a STRING.
type TypeCheckError struct {
	Where    string
	Expected string
	Actual   types.Kind
}

func (e *TypeCheckError) Error() string {
	return fmt.Sprintf("type check failed in %s: expected %s, got %s", e.Where, e.Expected, e.Actual)
}

func typeErr(where, expected string, actual types.Kind) *TypeCheckError {
	return &TypeCheckError{Where: where, Expected: expected, Actual: actual}
}

// CardinalityError reports a subquery that produced more than one row where
// a single value was required.
type CardinalityError struct {
	Where string
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("%s: subquery returned more than one row", e.Where)
}

// Failure is the error raised by evaluating an error node.
type Failure struct {
	Message string
}

func (e *Failure) Error() string {
	return "evaluation failed: " + e.Message
}

// IsDataError reports whether err is a data-dependent evaluation error:
// a type mismatch, an arithmetic fault, a cardinality violation or an
// explicit failure. Permissive evaluation turns these into MISSING; every
// other error (I/O, missing tables, lifecycle misuse) always propagates.
func IsDataError(err error) bool {
	var (
		tc *TypeCheckError
		ce *CardinalityError
		fe *Failure
		de *fn.DataError
	)
	return errors.As(err, &tc) || errors.As(err, &ce) || errors.As(err, &fe) || errors.As(err, &de)
}
