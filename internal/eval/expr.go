package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

// Expression is a physical scalar operator.
//
// Expressions are stateless: Eval may be called any number of times, from
// any number of rows, and every input it reads comes from env. That is what
// lets one compiled expression tree serve repeated executions.
type Expression interface {
	Eval(env *Env) (datum.Datum, error)
}

// ExprFunc adapts a function to Expression.
type ExprFunc func(env *Env) (datum.Datum, error)

func (f ExprFunc) Eval(env *Env) (datum.Datum, error) { return f(env) }

type literal struct {
	value datum.Datum
}

// Literal returns an expression that always yields v.
func Literal(v datum.Datum) Expression { return &literal{value: v} }

func (e *literal) Eval(*Env) (datum.Datum, error) { return e.value, nil }

type variable struct {
	depth, offset int
}

// Variable reads column offset of the row scope depth levels out.
func Variable(depth, offset int) Expression { return &variable{depth: depth, offset: offset} }

func (e *variable) Eval(env *Env) (datum.Datum, error) {
	row, ok := env.Scope(e.depth)
	if !ok {
		return datum.Datum{}, fmt.Errorf("variable %d.%d: no scope at depth %d (have %d)", e.depth, e.offset, e.depth, env.Depth())
	}
	if e.offset < 0 || e.offset >= len(row) {
		return datum.Datum{}, fmt.Errorf("variable %d.%d: offset out of range for row of width %d", e.depth, e.offset, len(row))
	}
	return row[e.offset], nil
}

type tableRef struct {
	name string
}

// TableRef resolves a catalog table through the session at evaluation time.
func TableRef(name string) Expression { return &tableRef{name: name} }

func (e *tableRef) Eval(env *Env) (datum.Datum, error) {
	t, ok := env.Session().Resolve(e.name)
	if !ok {
		return datum.Datum{}, fmt.Errorf("%w: %s", ErrTableNotFound, e.name)
	}
	v, err := t.Datum()
	if err != nil {
		return datum.Datum{}, fmt.Errorf("read table %s: %w", e.name, err)
	}
	return v, nil
}

type pathIndex struct {
	root, index Expression
}

// PathIndex returns root[index] for LIST and SEXP values. An index out of
// range yields MISSING.
func PathIndex(root, index Expression) Expression { return &pathIndex{root: root, index: index} }

func (e *pathIndex) Eval(env *Env) (datum.Datum, error) {
	root, err := e.root.Eval(env)
	if err != nil {
		return datum.Datum{}, err
	}
	idx, err := e.index.Eval(env)
	if err != nil {
		return datum.Datum{}, err
	}
	if root.IsAbsent() || idx.IsAbsent() {
		return datum.Missing(), nil
	}
	if k := root.Kind(); k != types.KindList && k != types.KindSexp {
		return datum.Datum{}, typeErr("path index", "LIST or SEXP", k)
	}
	if !idx.Kind().IsExactInteger() || idx.Kind() == types.KindNumeric {
		return datum.Datum{}, typeErr("path index", "integer index", idx.Kind())
	}
	elems, err := root.Elements()
	if err != nil {
		return datum.Datum{}, err
	}
	i := idx.Int64()
	if i < 0 || i >= int64(len(elems)) {
		return datum.Missing(), nil
	}
	return elems[i], nil
}

type pathKey struct {
	root, key   Expression
	insensitive bool
}

// PathKey returns root[key] for tuple values, matching names exactly. A
// field that is not present yields MISSING.
func PathKey(root, key Expression) Expression { return &pathKey{root: root, key: key} }

// PathSymbol returns root.symbol, matching names ignoring case.
func PathSymbol(root Expression, symbol string) Expression {
	return &pathKey{root: root, key: Literal(datum.String(symbol)), insensitive: true}
}

func (e *pathKey) Eval(env *Env) (datum.Datum, error) {
	root, err := e.root.Eval(env)
	if err != nil {
		return datum.Datum{}, err
	}
	key, err := e.key.Eval(env)
	if err != nil {
		return datum.Datum{}, err
	}
	if root.IsAbsent() || key.IsAbsent() {
		return datum.Missing(), nil
	}
	if !root.Kind().IsTuple() {
		return datum.Datum{}, typeErr("path key", "STRUCT", root.Kind())
	}
	if !key.Kind().IsText() {
		return datum.Datum{}, typeErr("path key", "text key", key.Kind())
	}
	var v datum.Datum
	var ok bool
	if e.insensitive {
		v, ok = root.GetInsensitive(key.Text())
	} else {
		v, ok = root.Get(key.Text())
	}
	if !ok {
		return datum.Missing(), nil
	}
	return v, nil
}

func evalArgs(env *Env, args []Expression) ([]datum.Datum, error) {
	out := make([]datum.Datum, len(args))
	for i, a := range args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type staticCall struct {
	fn   *fn.Function
	args []Expression
}

// Call invokes a statically resolved overload.
func Call(f *fn.Function, args ...Expression) Expression {
	return &staticCall{fn: f, args: args}
}

func (e *staticCall) Eval(env *Env) (datum.Datum, error) {
	args, err := evalArgs(env, e.args)
	if err != nil {
		return datum.Datum{}, err
	}
	return e.fn.Call(args)
}

type dynamicCall struct {
	name       string
	candidates []*fn.Function
	args       []Expression
}

// DynamicCall picks the overload per evaluation: the first candidate, in
// registration order, that accepts the runtime argument types.
func DynamicCall(name string, candidates []*fn.Function, args ...Expression) Expression {
	return &dynamicCall{name: name, candidates: candidates, args: args}
}

func (e *dynamicCall) Eval(env *Env) (datum.Datum, error) {
	args, err := evalArgs(env, e.args)
	if err != nil {
		return datum.Datum{}, err
	}
	f, ok := fn.Dispatch(e.candidates, args)
	if !ok {
		actual := types.KindUnknown
		kinds := make([]string, len(args))
		for i, a := range args {
			kinds[i] = a.Kind().String()
			if i == 0 {
				actual = a.Kind()
			}
		}
		return datum.Datum{}, &TypeCheckError{
			Where:    fmt.Sprintf("%s(%s)", e.name, strings.Join(kinds, ", ")),
			Expected: "arguments accepted by an overload",
			Actual:   actual,
		}
	}
	return f.Call(args)
}

// truthOf classifies a condition value: 1 TRUE, 0 FALSE, -1 NULL/MISSING.
func truthOf(where string, v datum.Datum) (int, error) {
	if v.IsAbsent() {
		return -1, nil
	}
	if v.Kind() != types.KindBool {
		return 0, typeErr(where, "BOOL", v.Kind())
	}
	if v.Boolean() {
		return 1, nil
	}
	return 0, nil
}

// CaseBranch is a compiled WHEN/THEN arm.
type CaseBranch struct {
	Condition Expression
	Result    Expression
}

type caseExpr struct {
	branches []CaseBranch
	def      Expression
}

// Case evaluates the result of the first branch whose condition is TRUE,
// or def.
func Case(def Expression, branches ...CaseBranch) Expression {
	return &caseExpr{branches: branches, def: def}
}

func (e *caseExpr) Eval(env *Env) (datum.Datum, error) {
	for _, b := range e.branches {
		c, err := b.Condition.Eval(env)
		if err != nil {
			return datum.Datum{}, err
		}
		t, err := truthOf("CASE", c)
		if err != nil {
			return datum.Datum{}, err
		}
		if t == 1 {
			return b.Result.Eval(env)
		}
	}
	return e.def.Eval(env)
}

type coalesce struct {
	args []Expression
}

// Coalesce yields its first argument that is neither NULL nor MISSING, or
// NULL.
func Coalesce(args ...Expression) Expression { return &coalesce{args: args} }

func (e *coalesce) Eval(env *Env) (datum.Datum, error) {
	for _, a := range e.args {
		v, err := a.Eval(env)
		if err != nil {
			return datum.Datum{}, err
		}
		if !v.IsAbsent() {
			return v, nil
		}
	}
	return datum.Null(types.Unknown()), nil
}

type nullIf struct {
	value, nullifier Expression
}

// NullIf yields NULL when value equals nullifier, otherwise value.
func NullIf(value, nullifier Expression) Expression {
	return &nullIf{value: value, nullifier: nullifier}
}

func (e *nullIf) Eval(env *Env) (datum.Datum, error) {
	v, err := e.value.Eval(env)
	if err != nil {
		return datum.Datum{}, err
	}
	n, err := e.nullifier.Eval(env)
	if err != nil {
		return datum.Datum{}, err
	}
	if !v.IsAbsent() && !n.IsAbsent() && datum.Equal(v, n) {
		return datum.Null(v.Type()), nil
	}
	return v, nil
}

type collectionExpr struct {
	typ    types.PType
	values []Expression
}

// Collection builds a BAG or LIST of type t. MISSING values are dropped.
func Collection(t types.PType, values ...Expression) Expression {
	return &collectionExpr{typ: t, values: values}
}

func (e *collectionExpr) Eval(env *Env) (datum.Datum, error) {
	elems := make([]datum.Datum, 0, len(e.values))
	for _, x := range e.values {
		v, err := x.Eval(env)
		if err != nil {
			return datum.Datum{}, err
		}
		if !v.IsMissing() {
			elems = append(elems, v)
		}
	}
	return datum.Collection(e.typ, elems), nil
}

// StructEntry is a compiled key/value pair of a struct constructor.
type StructEntry struct {
	Key   Expression
	Value Expression
}

type structExpr struct {
	entries []StructEntry
}

// Struct builds a tuple. Keys must evaluate to text; MISSING values are
// omitted.
func Struct(entries ...StructEntry) Expression { return &structExpr{entries: entries} }

func (e *structExpr) Eval(env *Env) (datum.Datum, error) {
	fields := make([]datum.Field, 0, len(e.entries))
	for _, en := range e.entries {
		k, err := en.Key.Eval(env)
		if err != nil {
			return datum.Datum{}, err
		}
		if k.IsAbsent() || !k.Kind().IsText() {
			return datum.Datum{}, typeErr("struct constructor", "text key", k.Kind())
		}
		v, err := en.Value.Eval(env)
		if err != nil {
			return datum.Datum{}, err
		}
		fields = append(fields, datum.NewField(k.Text(), v))
	}
	return datum.Struct(fields...), nil
}

type spread struct {
	args []Expression
}

// Spread merges tuple arguments into one tuple. A non-tuple argument at
// position i contributes a single field named _<i+1>; absent arguments
// contribute nothing.
func Spread(args ...Expression) Expression { return &spread{args: args} }

func (e *spread) Eval(env *Env) (datum.Datum, error) {
	var fields []datum.Field
	for i, a := range e.args {
		v, err := a.Eval(env)
		if err != nil {
			return datum.Datum{}, err
		}
		switch {
		case v.IsAbsent():
		case v.Kind().IsTuple():
			fields = append(fields, v.Fields()...)
		default:
			fields = append(fields, datum.NewField("_"+strconv.Itoa(i+1), v))
		}
	}
	return datum.Struct(fields...), nil
}

type failure struct {
	message string
}

// Fail always returns a *Failure carrying message.
func Fail(message string) Expression { return &failure{message: message} }

func (e *failure) Eval(*Env) (datum.Datum, error) {
	return datum.Datum{}, &Failure{Message: e.message}
}

type permissive struct {
	inner Expression
}

// Permissive wraps inner so that data errors (see IsDataError) yield
// MISSING instead of failing.
func Permissive(inner Expression) Expression {
	if _, ok := inner.(*permissive); ok {
		return inner
	}
	return &permissive{inner: inner}
}

func (e *permissive) Eval(env *Env) (datum.Datum, error) {
	v, err := e.inner.Eval(env)
	if err != nil {
		if IsDataError(err) {
			return datum.Missing(), nil
		}
		return datum.Datum{}, err
	}
	return v, nil
}
