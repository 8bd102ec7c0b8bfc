package plan

import (
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

func isOrderedSource(t types.PType) bool {
	return t.Kind() == types.KindList || t.Kind() == types.KindSexp
}

func elementOf(t types.PType) types.PType {
	if t.Kind().IsCollection() {
		return t.Element()
	}
	return types.Dynamic()
}

// RelScan iterates the elements of a collection value. Each element becomes
// a one-column row named As. Scanning a non-collection is a runtime type
// error. The output is ordered when the collection is a LIST or SEXP.
//
// Children: [Rex]
type RelScan struct {
	Rex Rex
	As  string
	typ types.RelType
}

// NewScan returns a RelScan.
func NewScan(rex Rex, as string) *RelScan {
	t := rex.Type()
	return &RelScan{Rex: rex, As: as, typ: types.NewRelType(isOrderedSource(t), types.F(as, elementOf(t)))}
}

func (r *RelScan) Type() types.RelType { return r.typ }
func (r *RelScan) Children() []Operator { return []Operator{r.Rex} }
func (*RelScan) operator() {}
func (*RelScan) rel() {}

// RelScanIndexed is RelScan with a second BIGINT column At holding the
// zero-based position of each element.
//
// Children: [Rex]
type RelScanIndexed struct {
	Rex Rex
	As  string
	At  string
	typ types.RelType
}

// NewScanIndexed returns a RelScanIndexed.
func NewScanIndexed(rex Rex, as, at string) *RelScanIndexed {
	t := rex.Type()
	return &RelScanIndexed{
		Rex: rex, As: as, At: at,
		typ: types.NewRelType(isOrderedSource(t), types.F(as, elementOf(t)), types.F(at, types.BigInt())),
	}
}

func (r *RelScanIndexed) Type() types.RelType { return r.typ }
func (r *RelScanIndexed) Children() []Operator { return []Operator{r.Rex} }
func (*RelScanIndexed) operator() {}
func (*RelScanIndexed) rel() {}

// RelIterate is the permissive scan: a collection yields its elements, any
// other value (including NULL) yields a single row holding that value and
// MISSING yields no rows.
//
// Children: [Rex]
type RelIterate struct {
	Rex Rex
	As  string
	typ types.RelType
}

// NewIterate returns a RelIterate.
func NewIterate(rex Rex, as string) *RelIterate {
	t := rex.Type()
	elem := t
	if t.Kind().IsCollection() {
		elem = t.Element()
	}
	return &RelIterate{Rex: rex, As: as, typ: types.NewRelType(isOrderedSource(t), types.F(as, elem))}
}

func (r *RelIterate) Type() types.RelType { return r.typ }
func (r *RelIterate) Children() []Operator { return []Operator{r.Rex} }
func (*RelIterate) operator() {}
func (*RelIterate) rel() {}

// RelUnpivot turns the fields of a tuple value into rows of (value As, name
// At). A non-tuple value v is treated as the tuple {'_1': v}; MISSING yields
// no rows.
//
// Children: [Rex]
type RelUnpivot struct {
	Rex Rex
	As  string
	At  string
	typ types.RelType
}

// NewUnpivot returns a RelUnpivot.
func NewUnpivot(rex Rex, as, at string) *RelUnpivot {
	return &RelUnpivot{
		Rex: rex, As: as, At: at,
		typ: types.NewRelType(false, types.F(as, types.Dynamic()), types.F(at, types.String())),
	}
}

func (r *RelUnpivot) Type() types.RelType { return r.typ }
func (r *RelUnpivot) Children() []Operator { return []Operator{r.Rex} }
func (*RelUnpivot) operator() {}
func (*RelUnpivot) rel() {}

// RelFilter keeps the rows for which Predicate evaluates to TRUE.
//
// Children: [Input, Predicate]
type RelFilter struct {
	Input     Rel
	Predicate Rex
	typ       types.RelType
}

// NewFilter returns a RelFilter. Its type is the input type.
func NewFilter(input Rel, predicate Rex) *RelFilter {
	return &RelFilter{Input: input, Predicate: predicate, typ: input.Type()}
}

func (r *RelFilter) Type() types.RelType { return r.typ }
func (r *RelFilter) Children() []Operator { return []Operator{r.Input, r.Predicate} }
func (*RelFilter) operator() {}
func (*RelFilter) rel() {}

// RelProject computes one output column per projection.
//
// Children: [Input, projection rexes...]
type RelProject struct {
	Input       Rel
	Projections []Binding
	typ         types.RelType
}

// NewProject returns a RelProject. The output keeps the input ordering.
func NewProject(input Rel, projections ...Binding) *RelProject {
	fields := make([]types.Field, len(projections))
	for i, p := range projections {
		fields[i] = types.F(p.Name, p.Rex.Type())
	}
	return &RelProject{
		Input:       input,
		Projections: append([]Binding(nil), projections...),
		typ:         types.NewRelType(input.Type().IsOrdered(), fields...),
	}
}

func (r *RelProject) Type() types.RelType { return r.typ }
func (r *RelProject) Children() []Operator {
	out := []Operator{r.Input}
	for _, p := range r.Projections {
		out = append(out, p.Rex)
	}
	return out
}
func (*RelProject) operator() {}
func (*RelProject) rel() {}

// JoinType selects which unmatched rows a join keeps.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

var joinNames = [...]string{JoinInner: "INNER", JoinLeft: "LEFT", JoinRight: "RIGHT", JoinFull: "FULL"}

func (j JoinType) String() string { return joinNames[j] }

// RelJoin is a join of two independent inputs. Unmatched rows of the
// preserved side are padded with NULLs.
//
// Children: [Left, Right, Condition]
type RelJoin struct {
	Left      Rel
	Right     Rel
	Condition Rex
	JoinType  JoinType
	typ       types.RelType
}

// NewJoin returns a RelJoin. A nil condition means TRUE.
func NewJoin(left, right Rel, condition Rex, joinType JoinType) *RelJoin {
	if condition == nil {
		condition = True()
	}
	return &RelJoin{
		Left: left, Right: right, Condition: condition, JoinType: joinType,
		typ: left.Type().Concat(right.Type()),
	}
}

func (r *RelJoin) Type() types.RelType { return r.typ }
func (r *RelJoin) Children() []Operator { return []Operator{r.Left, r.Right, r.Condition} }
func (*RelJoin) operator() {}
func (*RelJoin) rel() {}

// RelCorrelate is a lateral join: Right is evaluated once per Left row with
// that row in scope. Only INNER and LEFT are meaningful.
//
// Children: [Left, Right]
type RelCorrelate struct {
	Left     Rel
	Right    Rel
	JoinType JoinType
	typ      types.RelType
}

// NewCorrelate returns a RelCorrelate.
func NewCorrelate(left, right Rel, joinType JoinType) *RelCorrelate {
	return &RelCorrelate{
		Left: left, Right: right, JoinType: joinType,
		typ: left.Type().Concat(right.Type()).WithOrdered(left.Type().IsOrdered()),
	}
}

func (r *RelCorrelate) Type() types.RelType { return r.typ }
func (r *RelCorrelate) Children() []Operator { return []Operator{r.Left, r.Right} }
func (*RelCorrelate) operator() {}
func (*RelCorrelate) rel() {}

// Measure is one aggregate computation of a RelAggregate.
type Measure struct {
	As       string
	Function string
	Args     []Rex
	Distinct bool
	// Agg is the resolved overload, or nil when no overload of Function
	// accepts the argument types.
	Agg *fn.Aggregation
}

// NewMeasure resolves an aggregate function against reg. An unresolved
// measure keeps a nil Agg and is reported by the compiler.
func NewMeasure(reg *fn.Registry, as, function string, distinct bool, args ...Rex) Measure {
	agg, _ := reg.ResolveAggregation(function, typesOf(args))
	return Measure{As: as, Function: function, Args: append([]Rex(nil), args...), Distinct: distinct, Agg: agg}
}

// Type returns the result type of the measure.
func (m Measure) Type() types.PType {
	if m.Agg == nil {
		return types.Dynamic()
	}
	return m.Agg.Returns
}

// RelAggregate groups its input by Groups and computes Measures per group.
// Output columns are the group keys followed by the measures. Without
// groups exactly one row is produced, even for empty input.
//
// Children: [Input, group rexes..., measure args...]
type RelAggregate struct {
	Input    Rel
	Groups   []Binding
	Measures []Measure
	typ      types.RelType
}

// NewAggregate returns a RelAggregate.
func NewAggregate(input Rel, groups []Binding, measures []Measure) *RelAggregate {
	var fields []types.Field
	for _, g := range groups {
		fields = append(fields, types.F(g.Name, g.Rex.Type()))
	}
	for _, m := range measures {
		fields = append(fields, types.F(m.As, m.Type()))
	}
	return &RelAggregate{
		Input:    input,
		Groups:   append([]Binding(nil), groups...),
		Measures: append([]Measure(nil), measures...),
		typ:      types.NewRelType(false, fields...),
	}
}

func (r *RelAggregate) Type() types.RelType { return r.typ }
func (r *RelAggregate) Children() []Operator {
	out := []Operator{r.Input}
	for _, g := range r.Groups {
		out = append(out, g.Rex)
	}
	for _, m := range r.Measures {
		out = append(out, rexes(m.Args)...)
	}
	return out
}
func (*RelAggregate) operator() {}
func (*RelAggregate) rel() {}

// Order is a sort direction.
type Order int

const (
	Asc Order = iota
	Desc
)

// Nulls places absent values first or last.
type Nulls int

const (
	NullsFirst Nulls = iota
	NullsLast
)

// Collation is one ordering key.
type Collation struct {
	Rex   Rex
	Order Order
	Nulls Nulls
}

// C returns an ascending collation with NULLS FIRST, or a descending one
// with NULLS LAST, matching the PartiQL defaults.
func C(rex Rex, order Order) Collation {
	nulls := NullsFirst
	if order == Desc {
		nulls = NullsLast
	}
	return Collation{Rex: rex, Order: order, Nulls: nulls}
}

func (c Collation) String() string {
	s := "ASC"
	if c.Order == Desc {
		s = "DESC"
	}
	if c.Nulls == NullsFirst {
		return s + " NULLS FIRST"
	}
	return s + " NULLS LAST"
}

// RelSort orders its input. The sort is stable.
//
// Children: [Input, collation rexes...]
type RelSort struct {
	Input      Rel
	Collations []Collation
	typ        types.RelType
}

// NewSort returns a RelSort. Its output is ordered.
func NewSort(input Rel, collations ...Collation) *RelSort {
	return &RelSort{
		Input:      input,
		Collations: append([]Collation(nil), collations...),
		typ:        input.Type().WithOrdered(true),
	}
}

func (r *RelSort) Type() types.RelType { return r.typ }
func (r *RelSort) Children() []Operator {
	out := []Operator{r.Input}
	for _, c := range r.Collations {
		out = append(out, c.Rex)
	}
	return out
}
func (*RelSort) operator() {}
func (*RelSort) rel() {}

// RelLimit passes at most Limit rows.
//
// Children: [Input, Limit]
type RelLimit struct {
	Input Rel
	Limit Rex
	typ   types.RelType
}

// NewLimit returns a RelLimit.
func NewLimit(input Rel, limit Rex) *RelLimit {
	return &RelLimit{Input: input, Limit: limit, typ: input.Type()}
}

func (r *RelLimit) Type() types.RelType { return r.typ }
func (r *RelLimit) Children() []Operator { return []Operator{r.Input, r.Limit} }
func (*RelLimit) operator() {}
func (*RelLimit) rel() {}

// RelOffset skips the first Offset rows.
//
// Children: [Input, Offset]
type RelOffset struct {
	Input  Rel
	Offset Rex
	typ    types.RelType
}

// NewOffset returns a RelOffset.
func NewOffset(input Rel, offset Rex) *RelOffset {
	return &RelOffset{Input: input, Offset: offset, typ: input.Type()}
}

func (r *RelOffset) Type() types.RelType { return r.typ }
func (r *RelOffset) Children() []Operator { return []Operator{r.Input, r.Offset} }
func (*RelOffset) operator() {}
func (*RelOffset) rel() {}

// RelDistinct removes duplicate rows, keeping the first occurrence.
//
// Children: [Input]
type RelDistinct struct {
	Input Rel
	typ   types.RelType
}

// NewDistinct returns a RelDistinct.
func NewDistinct(input Rel) *RelDistinct {
	return &RelDistinct{Input: input, typ: input.Type()}
}

func (r *RelDistinct) Type() types.RelType { return r.typ }
func (r *RelDistinct) Children() []Operator { return []Operator{r.Input} }
func (*RelDistinct) operator() {}
func (*RelDistinct) rel() {}

// setOpType names set operation columns after the left input.
func setOpType(left Rel) types.RelType {
	return left.Type().WithOrdered(false)
}

// RelUnion is UNION [ALL]. Rows of Left come before rows of Right.
//
// Children: [Left, Right]
type RelUnion struct {
	Left  Rel
	Right Rel
	All   bool
	typ   types.RelType
}

// NewUnion returns a RelUnion. Its fields are named after Left.
func NewUnion(left, right Rel, all bool) *RelUnion {
	return &RelUnion{Left: left, Right: right, All: all, typ: setOpType(left)}
}

func (r *RelUnion) Type() types.RelType { return r.typ }
func (r *RelUnion) Children() []Operator { return []Operator{r.Left, r.Right} }
func (*RelUnion) operator() {}
func (*RelUnion) rel() {}

// RelIntersect is INTERSECT [ALL].
//
// Children: [Left, Right]
type RelIntersect struct {
	Left  Rel
	Right Rel
	All   bool
	typ   types.RelType
}

// NewIntersect returns a RelIntersect.
func NewIntersect(left, right Rel, all bool) *RelIntersect {
	return &RelIntersect{Left: left, Right: right, All: all, typ: setOpType(left)}
}

func (r *RelIntersect) Type() types.RelType { return r.typ }
func (r *RelIntersect) Children() []Operator { return []Operator{r.Left, r.Right} }
func (*RelIntersect) operator() {}
func (*RelIntersect) rel() {}

// RelExcept is EXCEPT [ALL].
//
// Children: [Left, Right]
type RelExcept struct {
	Left  Rel
	Right Rel
	All   bool
	typ   types.RelType
}

// NewExcept returns a RelExcept.
func NewExcept(left, right Rel, all bool) *RelExcept {
	return &RelExcept{Left: left, Right: right, All: all, typ: setOpType(left)}
}

func (r *RelExcept) Type() types.RelType { return r.typ }
func (r *RelExcept) Children() []Operator { return []Operator{r.Left, r.Right} }
func (*RelExcept) operator() {}
func (*RelExcept) rel() {}

// WindowCall is one window function of a RelWindow.
type WindowCall struct {
	As       string
	Function string
	Args     []Rex
	// Window is the resolved function, or nil when Function is unknown or
	// the argument count is out of range.
	Window *fn.WindowFunction
}

// NewWindowCall resolves a window function against reg.
func NewWindowCall(reg *fn.Registry, as, function string, args ...Rex) WindowCall {
	w, ok := reg.Window(function)
	if ok && (len(args) < w.MinArgs || len(args) > w.MaxArgs) {
		w = nil
	}
	return WindowCall{As: as, Function: function, Args: append([]Rex(nil), args...), Window: w}
}

// Type returns the result type of the call.
func (w WindowCall) Type() types.PType {
	if w.Window == nil {
		return types.Dynamic()
	}
	return w.Window.Returns(typesOf(w.Args))
}

// RelWindow partitions its input, sorts each partition by Collations and
// appends one column per window function after the input columns.
//
// Children: [Input, partition rexes..., collation rexes..., function args...]
type RelWindow struct {
	Input      Rel
	Functions  []WindowCall
	Partitions []Rex
	Collations []Collation
	typ        types.RelType
}

// NewWindow returns a RelWindow.
func NewWindow(input Rel, partitions []Rex, collations []Collation, functions ...WindowCall) *RelWindow {
	fields := input.Type().Fields()
	for _, f := range functions {
		fields = append(fields, types.F(f.As, f.Type()))
	}
	return &RelWindow{
		Input:      input,
		Functions:  append([]WindowCall(nil), functions...),
		Partitions: append([]Rex(nil), partitions...),
		Collations: append([]Collation(nil), collations...),
		typ:        types.NewRelType(false, fields...),
	}
}

func (r *RelWindow) Type() types.RelType { return r.typ }
func (r *RelWindow) Children() []Operator {
	out := []Operator{r.Input}
	out = append(out, rexes(r.Partitions)...)
	for _, c := range r.Collations {
		out = append(out, c.Rex)
	}
	for _, f := range r.Functions {
		out = append(out, rexes(f.Args)...)
	}
	return out
}
func (*RelWindow) operator() {}
func (*RelWindow) rel() {}

// RelWith evaluates Elements once and makes them visible to Body as a new
// scope: inside Body, element i is RexVar{Depth: d, Offset: i} where d counts
// the row scopes pushed since.
//
// Children: [element rexes..., Body]
type RelWith struct {
	Elements []Binding
	Body     Rel
	typ      types.RelType
}

// NewWith returns a RelWith. Its type is the body type.
func NewWith(body Rel, elements ...Binding) *RelWith {
	return &RelWith{Elements: append([]Binding(nil), elements...), Body: body, typ: body.Type()}
}

func (r *RelWith) Type() types.RelType { return r.typ }
func (r *RelWith) Children() []Operator {
	var out []Operator
	for _, e := range r.Elements {
		out = append(out, e.Rex)
	}
	return append(out, r.Body)
}
func (*RelWith) operator() {}
func (*RelWith) rel() {}

// StepKind selects how an exclusion step descends into a value.
type StepKind int

const (
	// StepKey matches a tuple field by exact name.
	StepKey StepKind = iota
	// StepSymbol matches a tuple field ignoring case.
	StepSymbol
	// StepIndex matches one LIST element by position.
	StepIndex
	// StepAllFields matches every field of a tuple.
	StepAllFields
	// StepAllElements matches every element of a collection.
	StepAllElements
)

// ExcludeStep is one step of an exclusion path.
type ExcludeStep struct {
	Kind  StepKind
	Key   string
	Index int
}

// ExcludePath removes the value reached by Steps from column Column.
type ExcludePath struct {
	Column int
	Steps  []ExcludeStep
}

// RelExclude removes nested values from the columns of its input rows. Paths
// that do not resolve are ignored.
//
// Children: [Input]
type RelExclude struct {
	Input Rel
	Paths []ExcludePath
	typ   types.RelType
}

// NewExclude returns a RelExclude. Its type is the input type.
func NewExclude(input Rel, paths ...ExcludePath) *RelExclude {
	return &RelExclude{Input: input, Paths: append([]ExcludePath(nil), paths...), typ: input.Type()}
}

func (r *RelExclude) Type() types.RelType { return r.typ }
func (r *RelExclude) Children() []Operator { return []Operator{r.Input} }
func (*RelExclude) operator() {}
func (*RelExclude) rel() {}
