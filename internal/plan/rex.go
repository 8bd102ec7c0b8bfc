package plan

import (
	"strings"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

// RexLit is a constant value.
type RexLit struct {
	Value datum.Datum
}

// Lit returns a literal.
func Lit(v datum.Datum) *RexLit { return &RexLit{Value: v} }

// True returns the literal TRUE.
func True() *RexLit { return Lit(datum.Bool(true)) }

func (r *RexLit) Type() types.PType { return r.Value.Type() }
func (*RexLit) Children() []Operator { return nil }
func (*RexLit) operator() {}
func (*RexLit) rex() {}

// RexVar references a column of an enclosing row scope. Depth 0 is the
// innermost scope (the current input row), depth 1 the scope around it, and
// so on. Offset is the column position within that scope.
type RexVar struct {
	Depth  int
	Offset int
	typ    types.PType
}

// Var returns a variable reference of the given static type.
func Var(depth, offset int, t types.PType) *RexVar {
	return &RexVar{Depth: depth, Offset: offset, typ: t}
}

func (r *RexVar) Type() types.PType { return r.typ }
func (*RexVar) Children() []Operator { return nil }
func (*RexVar) operator() {}
func (*RexVar) rex() {}

// RexTable references a catalog table by its dotted name. The value is the
// table's datum, resolved against the session catalog at execution.
type RexTable struct {
	Name string
	typ  types.PType
}

// Table returns a table reference of the given static type.
func Table(name string, t types.PType) *RexTable {
	return &RexTable{Name: name, typ: t}
}

func (r *RexTable) Type() types.PType { return r.typ }
func (*RexTable) Children() []Operator { return nil }
func (*RexTable) operator() {}
func (*RexTable) rex() {}

// RexPathIndex is root[index] on a LIST or SEXP.
type RexPathIndex struct {
	Root  Rex
	Index Rex
	typ   types.PType
}

// PathIndex returns root[index].
func PathIndex(root, index Rex) *RexPathIndex {
	t := types.Dynamic()
	if k := root.Type().Kind(); k == types.KindList || k == types.KindSexp {
		t = root.Type().Element()
	}
	return &RexPathIndex{Root: root, Index: index, typ: t}
}

func (r *RexPathIndex) Type() types.PType { return r.typ }
func (r *RexPathIndex) Children() []Operator { return []Operator{r.Root, r.Index} }
func (*RexPathIndex) operator() {}
func (*RexPathIndex) rex() {}

func fieldType(root types.PType, key string, insensitive bool) types.PType {
	if !root.Kind().IsTuple() || !root.IsClosed() {
		return types.Dynamic()
	}
	for _, f := range root.Fields() {
		if f.Name == key || (insensitive && strings.EqualFold(f.Name, key)) {
			return f.Type
		}
	}
	// A closed tuple without the field yields MISSING.
	return types.Unknown()
}

// RexPathKey is root[key] on a tuple, matching the field name exactly.
type RexPathKey struct {
	Root Rex
	Key  Rex
	typ  types.PType
}

// PathKey returns root[key].
func PathKey(root, key Rex) *RexPathKey {
	t := types.Dynamic()
	if lit, ok := key.(*RexLit); ok && lit.Value.Kind().IsText() && !lit.Value.IsAbsent() {
		t = fieldType(root.Type(), lit.Value.Text(), false)
	}
	return &RexPathKey{Root: root, Key: key, typ: t}
}

func (r *RexPathKey) Type() types.PType { return r.typ }
func (r *RexPathKey) Children() []Operator { return []Operator{r.Root, r.Key} }
func (*RexPathKey) operator() {}
func (*RexPathKey) rex() {}

// RexPathSymbol is root.symbol, matching the field name case-insensitively.
type RexPathSymbol struct {
	Root   Rex
	Symbol string
	typ    types.PType
}

// PathSymbol returns root.symbol.
func PathSymbol(root Rex, symbol string) *RexPathSymbol {
	return &RexPathSymbol{Root: root, Symbol: symbol, typ: fieldType(root.Type(), symbol, true)}
}

func (r *RexPathSymbol) Type() types.PType { return r.typ }
func (r *RexPathSymbol) Children() []Operator { return []Operator{r.Root} }
func (*RexPathSymbol) operator() {}
func (*RexPathSymbol) rex() {}

// RexCall is a scalar function call. Exactly one of these holds:
//   - Fn is set: the overload was resolved statically.
//   - Candidates is non-empty: an argument is DYNAMIC and the overload is
//     picked per row from Candidates in registration order.
//   - both are empty: no overload can accept the arguments.
type RexCall struct {
	Name       string
	Args       []Rex
	Fn         *fn.Function
	Candidates []*fn.Function
	typ        types.PType
}

// NewCall resolves name against reg for the argument types.
func NewCall(reg *fn.Registry, name string, args ...Rex) *RexCall {
	c := &RexCall{Name: strings.ToLower(name), Args: append([]Rex(nil), args...), typ: types.Dynamic()}
	argTypes := typesOf(args)
	if f, ok := reg.Resolve(name, argTypes); ok {
		c.Fn = f
		c.typ = f.Returns
		return c
	}
	c.Candidates = reg.Candidates(name, argTypes)
	if len(c.Candidates) > 0 {
		returns := make([]types.PType, len(c.Candidates))
		for i, f := range c.Candidates {
			returns[i] = f.Returns
		}
		c.typ = commonType(returns)
	}
	return c
}

// IsResolved reports whether the call has a static overload or runtime
// candidates.
func (r *RexCall) IsResolved() bool { return r.Fn != nil || len(r.Candidates) > 0 }

func (r *RexCall) Type() types.PType { return r.typ }
func (r *RexCall) Children() []Operator { return rexes(r.Args) }
func (*RexCall) operator() {}
func (*RexCall) rex() {}

// Branch is one WHEN ... THEN ... arm of a CASE.
type Branch struct {
	Condition Rex
	Result    Rex
}

// RexCase evaluates the Result of the first Branch whose Condition is TRUE,
// or Default.
type RexCase struct {
	Branches []Branch
	Default  Rex
	typ      types.PType
}

// Case returns a searched CASE. A nil default means NULL.
func Case(def Rex, branches ...Branch) *RexCase {
	if def == nil {
		def = Lit(datum.Null(types.Unknown()))
	}
	var ts []types.PType
	for _, b := range branches {
		ts = append(ts, b.Result.Type())
	}
	if def.Type().Kind() != types.KindUnknown {
		ts = append(ts, def.Type())
	}
	return &RexCase{Branches: append([]Branch(nil), branches...), Default: def, typ: commonType(ts)}
}

func (r *RexCase) Type() types.PType { return r.typ }
func (r *RexCase) Children() []Operator {
	var out []Operator
	for _, b := range r.Branches {
		out = append(out, b.Condition, b.Result)
	}
	return append(out, r.Default)
}
func (*RexCase) operator() {}
func (*RexCase) rex() {}

// RexCast converts Operand to Target.
type RexCast struct {
	Operand Rex
	Target  types.PType
}

// Cast returns CAST(operand AS target).
func Cast(operand Rex, target types.PType) *RexCast {
	return &RexCast{Operand: operand, Target: target}
}

func (r *RexCast) Type() types.PType { return r.Target }
func (r *RexCast) Children() []Operator { return []Operator{r.Operand} }
func (*RexCast) operator() {}
func (*RexCast) rex() {}

// RexCoalesce returns its first argument that is neither NULL nor MISSING.
type RexCoalesce struct {
	Args []Rex
	typ  types.PType
}

// Coalesce returns COALESCE(args...).
func Coalesce(args ...Rex) *RexCoalesce {
	return &RexCoalesce{Args: append([]Rex(nil), args...), typ: commonType(typesOf(args))}
}

func (r *RexCoalesce) Type() types.PType { return r.typ }
func (r *RexCoalesce) Children() []Operator { return rexes(r.Args) }
func (*RexCoalesce) operator() {}
func (*RexCoalesce) rex() {}

// RexNullIf returns NULL when Value equals Nullifier, otherwise Value.
type RexNullIf struct {
	Value     Rex
	Nullifier Rex
}

// NullIf returns NULLIF(value, nullifier).
func NullIf(value, nullifier Rex) *RexNullIf {
	return &RexNullIf{Value: value, Nullifier: nullifier}
}

func (r *RexNullIf) Type() types.PType { return r.Value.Type() }
func (r *RexNullIf) Children() []Operator { return []Operator{r.Value, r.Nullifier} }
func (*RexNullIf) operator() {}
func (*RexNullIf) rex() {}

// RexCollection constructs a BAG or LIST from its values. MISSING values are
// dropped from the result.
type RexCollection struct {
	Values []Rex
	typ    types.PType
}

// Collection returns a collection constructor. kind must be KindBag or
// KindList.
func Collection(kind types.Kind, values ...Rex) *RexCollection {
	elem := commonType(typesOf(values))
	t := types.Bag(elem)
	if kind == types.KindList {
		t = types.List(elem)
	}
	return &RexCollection{Values: append([]Rex(nil), values...), typ: t}
}

func (r *RexCollection) Type() types.PType { return r.typ }
func (r *RexCollection) Children() []Operator { return rexes(r.Values) }
func (*RexCollection) operator() {}
func (*RexCollection) rex() {}

// StructField is one key/value pair of a struct constructor.
type StructField struct {
	Key   Rex
	Value Rex
}

// RexStruct constructs a tuple. Fields whose value is MISSING are omitted;
// a key that is not text is a runtime error.
type RexStruct struct {
	Fields []StructField
	typ    types.PType
}

// Struct returns a struct constructor. The type is closed when every key is
// a string literal.
func Struct(fields ...StructField) *RexStruct {
	closed := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		lit, ok := f.Key.(*RexLit)
		if !ok || !lit.Value.Kind().IsText() || lit.Value.IsAbsent() {
			closed = nil
			break
		}
		closed = append(closed, types.F(lit.Value.Text(), f.Value.Type()))
	}
	t := types.Struct()
	if closed != nil {
		t = types.StructOf(closed...)
	}
	return &RexStruct{Fields: append([]StructField(nil), fields...), typ: t}
}

func (r *RexStruct) Type() types.PType { return r.typ }
func (r *RexStruct) Children() []Operator {
	var out []Operator
	for _, f := range r.Fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
func (*RexStruct) operator() {}
func (*RexStruct) rex() {}

// RexSpread merges the fields of its tuple arguments into one tuple, in
// argument order. It backs SELECT a.*, b.*.
type RexSpread struct {
	Args []Rex
	typ  types.PType
}

// Spread returns a tuple merge of args.
func Spread(args ...Rex) *RexSpread {
	var fields []types.Field
	closed := true
	for _, a := range args {
		t := a.Type()
		if !t.Kind().IsTuple() || !t.IsClosed() {
			closed = false
			break
		}
		fields = append(fields, t.Fields()...)
	}
	t := types.Struct()
	if closed {
		t = types.StructOf(fields...)
	}
	return &RexSpread{Args: append([]Rex(nil), args...), typ: t}
}

func (r *RexSpread) Type() types.PType { return r.typ }
func (r *RexSpread) Children() []Operator { return rexes(r.Args) }
func (*RexSpread) operator() {}
func (*RexSpread) rex() {}

// RexSelect evaluates Constructor once per row of Input and collects the
// values. The result is a LIST when Input is ordered, otherwise a BAG. The
// collection is lazy: every iteration runs the relation again.
type RexSelect struct {
	Input       Rel
	Constructor Rex
	typ         types.PType
}

// Select returns a SELECT VALUE constructor.
func Select(input Rel, constructor Rex) *RexSelect {
	t := types.Bag(constructor.Type())
	if input.Type().IsOrdered() {
		t = types.List(constructor.Type())
	}
	return &RexSelect{Input: input, Constructor: constructor, typ: t}
}

func (r *RexSelect) Type() types.PType { return r.typ }
func (r *RexSelect) Children() []Operator { return []Operator{r.Input, r.Constructor} }
func (*RexSelect) operator() {}
func (*RexSelect) rex() {}

// Coercion selects how a subquery collapses into a single value.
type Coercion int

const (
	// CoerceScalar expects at most one row holding a one-field tuple and
	// yields that field's value. Zero rows yield NULL.
	CoerceScalar Coercion = iota
	// CoerceRow expects at most one row and yields the constructed tuple.
	// Zero rows yield NULL.
	CoerceRow
)

func (c Coercion) String() string {
	if c == CoerceRow {
		return "ROW"
	}
	return "SCALAR"
}

// RexSubquery is a subquery used as a value. More than one row is a
// runtime error.
type RexSubquery struct {
	Input       Rel
	Constructor Rex
	Coercion    Coercion
	typ         types.PType
}

// Subquery returns a coerced subquery.
func Subquery(input Rel, constructor Rex, coercion Coercion) *RexSubquery {
	t := constructor.Type()
	if coercion == CoerceScalar {
		t = types.Dynamic()
		if ct := constructor.Type(); ct.Kind().IsTuple() && ct.IsClosed() {
			if fs := ct.Fields(); len(fs) == 1 {
				t = fs[0].Type
			}
		}
	}
	return &RexSubquery{Input: input, Constructor: constructor, Coercion: coercion, typ: t}
}

func (r *RexSubquery) Type() types.PType { return r.typ }
func (r *RexSubquery) Children() []Operator { return []Operator{r.Input, r.Constructor} }
func (*RexSubquery) operator() {}
func (*RexSubquery) rex() {}

// RexPivot builds a tuple with one field per input row, named by Key and
// valued by Value. Rows whose key is not text are skipped.
type RexPivot struct {
	Input Rel
	Key   Rex
	Value Rex
}

// Pivot returns PIVOT value AT key FROM input.
func Pivot(input Rel, key, value Rex) *RexPivot {
	return &RexPivot{Input: input, Key: key, Value: value}
}

func (*RexPivot) Type() types.PType { return types.Struct() }
func (r *RexPivot) Children() []Operator { return []Operator{r.Input, r.Key, r.Value} }
func (*RexPivot) operator() {}
func (*RexPivot) rex() {}

// RexError is a planner-inserted node that fails when evaluated. Permissive
// evaluation turns it into MISSING.
type RexError struct {
	Message string
}

// Error returns an error node.
func Error(message string) *RexError { return &RexError{Message: message} }

func (*RexError) Type() types.PType { return types.Dynamic() }
func (*RexError) Children() []Operator { return nil }
func (*RexError) operator() {}
func (*RexError) rex() {}
