package fn

import (
	"fmt"
	"strings"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

// Error codes carried by DataError.
const (
	CodeOverflow     = "overflow"
	CodeDivideByZero = "divide_by_zero"
	CodeTypeMismatch = "type_mismatch"
	CodeInvalidArg   = "invalid_argument"
)

// DataError is a runtime evaluation error raised by a function: overflow,
// division by zero, or an argument whose runtime type the function cannot
// handle. It is an ordinary error value; callers decide whether it becomes
// MISSING or aborts the query.
type DataError struct {
	Code     string
	Function string
	Message  string
}

// Error implements the error interface.
func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Function, e.Message, e.Code)
}

func dataErr(code, function, format string, args ...any) *DataError {
	return &DataError{Code: code, Function: function, Message: fmt.Sprintf(format, args...)}
}

// Function is one overload of a scalar function.
//
// When NullCall is set, any NULL argument short-circuits to NULL of the
// return type without calling Invoke. When MissingCall is set, any MISSING
// argument short-circuits to MISSING. Functions that must observe absent
// values (IS NULL, AND, OR, COALESCE-like functions) leave both unset.
type Function struct {
	Name        string
	Params      []types.PType
	Returns     types.PType
	NullCall    bool
	MissingCall bool
	Invoke      func(args []datum.Datum) (datum.Datum, error)
}

// Signature renders the overload, e.g. plus(INTEGER, INTEGER) -> INTEGER.
func (f *Function) Signature() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s(%s) -> %s", f.Name, strings.Join(parts, ", "), f.Returns)
}

// Accepts reports whether the overload statically accepts arguments of the
// given types. A DYNAMIC argument is only accepted by a DYNAMIC parameter.
func (f *Function) Accepts(args []types.PType) bool {
	return acceptsAll(f.Params, args)
}

// Call applies the NULL and MISSING short-circuit rules and then invokes
// the overload.
func (f *Function) Call(args []datum.Datum) (datum.Datum, error) {
	if f.MissingCall {
		for _, a := range args {
			if a.IsMissing() {
				return datum.Missing(), nil
			}
		}
	}
	if f.NullCall {
		for _, a := range args {
			if a.IsAbsent() {
				return datum.Null(f.Returns), nil
			}
		}
	}
	return f.Invoke(args)
}

func acceptsAll(params, args []types.PType) bool {
	if len(params) != len(args) {
		return false
	}
	for i := range params {
		if !Accepts(params[i], args[i]) {
			return false
		}
	}
	return true
}

// Accepts reports whether a value of type arg may be passed to a parameter
// of type param.
//
// Numeric arguments widen along the promotion lattice, every text kind is
// accepted by every text parameter and UNKNOWN (the type of untyped NULL and
// MISSING) is accepted everywhere.
func Accepts(param, arg types.PType) bool {
	pk, ak := param.Kind(), arg.Kind()
	switch {
	case pk == types.KindDynamic:
		return true
	case ak == types.KindUnknown:
		return true
	case ak == types.KindDynamic:
		return false
	case pk.IsNumeric() && ak.IsNumeric():
		return types.NumericRank(ak) <= types.NumericRank(pk)
	case pk.IsText() && ak.IsText():
		return true
	case pk.IsTuple() && ak.IsTuple():
		return true
	}
	return pk == ak
}

// Accumulator folds the argument tuples of one group into an aggregate value.
type Accumulator interface {
	Next(args []datum.Datum) error
	Value() (datum.Datum, error)
}

// Aggregation is one overload of an aggregate function.
type Aggregation struct {
	Name        string
	Params      []types.PType
	Returns     types.PType
	Accumulator func() Accumulator
}

// Accepts reports whether the overload statically accepts the argument types.
func (a *Aggregation) Accepts(args []types.PType) bool {
	return acceptsAll(a.Params, args)
}

// Partition is the input of a window function: the evaluated arguments of
// each row of one sorted partition and the peer group of each row. Rows that
// compare equal under the window ordering share a peer group; peer groups are
// numbered from zero in order.
type Partition struct {
	Args  [][]datum.Datum
	Peers []int
}

// Size returns the number of rows in the partition.
func (p Partition) Size() int {
	return len(p.Args)
}

// WindowFunction computes one value per row of a sorted partition.
type WindowFunction struct {
	Name    string
	MinArgs int
	MaxArgs int
	Returns func(args []types.PType) types.PType
	Compute func(p Partition) ([]datum.Datum, error)
}

// Registry holds function overloads in registration order.
//
// Names are matched case-insensitively. Registering never replaces an
// existing overload; resolution always picks the first matching one, so
// registration order decides ties.
type Registry struct {
	functions    map[string][]*Function
	aggregations map[string][]*Aggregation
	windows      map[string]*WindowFunction
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		functions:    make(map[string][]*Function),
		aggregations: make(map[string][]*Aggregation),
		windows:      make(map[string]*WindowFunction),
	}
}

func normalize(name string) string {
	return strings.ToLower(name)
}

// Register appends scalar overloads.
func (r *Registry) Register(fns ...*Function) {
	for _, f := range fns {
		n := normalize(f.Name)
		r.functions[n] = append(r.functions[n], f)
	}
}

// RegisterAggregation appends aggregate overloads.
func (r *Registry) RegisterAggregation(aggs ...*Aggregation) {
	for _, a := range aggs {
		n := normalize(a.Name)
		r.aggregations[n] = append(r.aggregations[n], a)
	}
}

// RegisterWindow adds a window function. A later registration under the same
// name replaces the earlier one.
func (r *Registry) RegisterWindow(w *WindowFunction) {
	r.windows[normalize(w.Name)] = w
}

// Functions returns the overloads of name in registration order.
func (r *Registry) Functions(name string) []*Function {
	return append([]*Function(nil), r.functions[normalize(name)]...)
}

// HasFunction reports whether any scalar overload is registered under name.
func (r *Registry) HasFunction(name string) bool {
	return len(r.functions[normalize(name)]) > 0
}

// Resolve returns the first overload of name that statically accepts args.
func (r *Registry) Resolve(name string, args []types.PType) (*Function, bool) {
	for _, f := range r.functions[normalize(name)] {
		if f.Accepts(args) {
			return f, true
		}
	}
	return nil, false
}

// Candidates returns, in registration order, the overloads of name that could
// accept args once the DYNAMIC arguments are known at runtime.
func (r *Registry) Candidates(name string, args []types.PType) []*Function {
	var out []*Function
	for _, f := range r.functions[normalize(name)] {
		if len(f.Params) != len(args) {
			continue
		}
		ok := true
		for i, p := range f.Params {
			if args[i].Kind() != types.KindDynamic && !Accepts(p, args[i]) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, f)
		}
	}
	return out
}

// Dispatch picks the first candidate that accepts the runtime types of args.
func Dispatch(candidates []*Function, args []datum.Datum) (*Function, bool) {
	ts := make([]types.PType, len(args))
	for i, a := range args {
		ts[i] = a.Type()
		if a.IsAbsent() {
			ts[i] = types.Unknown()
		}
	}
	for _, f := range candidates {
		if f.Accepts(ts) {
			return f, true
		}
	}
	return nil, false
}

// ResolveAggregation returns the first aggregate overload of name that
// statically accepts args.
func (r *Registry) ResolveAggregation(name string, args []types.PType) (*Aggregation, bool) {
	for _, a := range r.aggregations[normalize(name)] {
		if a.Accepts(args) {
			return a, true
		}
	}
	return nil, false
}

// HasAggregation reports whether any aggregate overload is registered under
// name.
func (r *Registry) HasAggregation(name string) bool {
	return len(r.aggregations[normalize(name)]) > 0
}

// Window returns the window function registered under name.
func (r *Registry) Window(name string) (*WindowFunction, bool) {
	w, ok := r.windows[normalize(name)]
	return w, ok
}
