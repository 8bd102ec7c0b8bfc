package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

// DefaultStrategies returns the builtin strategies, one per operator
// variant.
func DefaultStrategies() []Strategy {
	return []Strategy{
		// relations
		{Name: "scan", Pattern: Of[*plan.RelScan](), Apply: applyScan},
		{Name: "scan_indexed", Pattern: Of[*plan.RelScanIndexed](), Apply: applyScanIndexed},
		{Name: "iterate", Pattern: Of[*plan.RelIterate](), Apply: applyIterate},
		{Name: "unpivot", Pattern: Of[*plan.RelUnpivot](), Apply: applyUnpivot},
		{Name: "filter", Pattern: Of[*plan.RelFilter](), Apply: applyFilter},
		{Name: "project", Pattern: Of[*plan.RelProject](), Apply: applyProject},
		{Name: "nested_loop_join", Pattern: Of[*plan.RelJoin](), Apply: applyJoin},
		{Name: "correlate", Pattern: Of[*plan.RelCorrelate](), Apply: applyCorrelate},
		{Name: "hash_aggregate", Pattern: Of[*plan.RelAggregate](), Apply: applyAggregate},
		{Name: "sort", Pattern: Of[*plan.RelSort](), Apply: applySort},
		{Name: "limit", Pattern: Of[*plan.RelLimit](), Apply: applyLimit},
		{Name: "offset", Pattern: Of[*plan.RelOffset](), Apply: applyOffset},
		{Name: "distinct", Pattern: Of[*plan.RelDistinct](), Apply: applyDistinct},
		{Name: "union", Pattern: Of[*plan.RelUnion](), Apply: applySetOp},
		{Name: "intersect", Pattern: Of[*plan.RelIntersect](), Apply: applySetOp},
		{Name: "except", Pattern: Of[*plan.RelExcept](), Apply: applySetOp},
		{Name: "window", Pattern: Of[*plan.RelWindow](), Apply: applyWindow},
		{Name: "with", Pattern: Of[*plan.RelWith](), Apply: applyWith},
		{Name: "exclude", Pattern: Of[*plan.RelExclude](), Apply: applyExclude},

		// expressions
		{Name: "literal", Pattern: Of[*plan.RexLit](), Apply: applyLit},
		{Name: "variable", Pattern: Of[*plan.RexVar](), Apply: applyVar},
		{Name: "table", Pattern: Of[*plan.RexTable](), Apply: applyTable},
		{Name: "path_index", Pattern: Of[*plan.RexPathIndex](), Apply: applyPathIndex},
		{Name: "path_key", Pattern: Of[*plan.RexPathKey](), Apply: applyPathKey},
		{Name: "path_symbol", Pattern: Of[*plan.RexPathSymbol](), Apply: applyPathSymbol},
		{Name: "static_call", Pattern: Of[*plan.RexCall]().Where(isStaticCall), Apply: applyStaticCall},
		{Name: "dynamic_call", Pattern: Of[*plan.RexCall](), Apply: applyDynamicCall},
		{Name: "case", Pattern: Of[*plan.RexCase](), Apply: applyCase},
		{Name: "cast", Pattern: Of[*plan.RexCast](), Apply: applyCast},
		{Name: "coalesce", Pattern: Of[*plan.RexCoalesce](), Apply: applyCoalesce},
		{Name: "nullif", Pattern: Of[*plan.RexNullIf](), Apply: applyNullIf},
		{Name: "collection", Pattern: Of[*plan.RexCollection](), Apply: applyCollection},
		{Name: "struct", Pattern: Of[*plan.RexStruct](), Apply: applyStruct},
		{Name: "spread", Pattern: Of[*plan.RexSpread](), Apply: applySpread},
		{Name: "select", Pattern: Of[*plan.RexSelect](), Apply: applySelect},
		{Name: "subquery", Pattern: Of[*plan.RexSubquery](), Apply: applySubquery},
		{Name: "pivot", Pattern: Of[*plan.RexPivot](), Apply: applyPivot},
		{Name: "error", Pattern: Of[*plan.RexError](), Apply: applyError},
	}
}

// maybe reports whether a value of static type t could satisfy want at
// runtime: it has that kind, or its kind is only known at runtime.
func maybe(t types.PType, want func(types.Kind) bool) bool {
	k := t.Kind()
	return k == types.KindDynamic || k == types.KindUnknown || want(k)
}

func isBool(k types.Kind) bool { return k == types.KindBool }

func isCount(k types.Kind) bool { return k.IsExactInteger() && k != types.KindNumeric }

func checkCondition(m *Match, i int, where string) error {
	if t := m.TypeOf(i); !maybe(t, isBool) {
		return perr(CodeTypeMismatch, m.Operator, "%s must be BOOL, got %s", where, t)
	}
	return nil
}

func checkScannable(m *Match) error {
	if m.Mode != ModeStrict {
		return nil
	}
	if t := m.TypeOf(0); !maybe(t, types.Kind.IsCollection) {
		return perr(CodeTypeMismatch, m.Operator, "cannot scan a value of type %s", t)
	}
	return nil
}

func applyScan(m *Match) (any, error) {
	if err := checkScannable(m); err != nil {
		return nil, err
	}
	expr, mode := m.Rex(0), m.Mode
	return eval.Factory(func() eval.Relation { return eval.NewScan(expr, mode) }), nil
}

func applyScanIndexed(m *Match) (any, error) {
	if err := checkScannable(m); err != nil {
		return nil, err
	}
	expr, mode := m.Rex(0), m.Mode
	return eval.Factory(func() eval.Relation { return eval.NewScanIndexed(expr, mode) }), nil
}

func applyIterate(m *Match) (any, error) {
	expr := m.Rex(0)
	return eval.Factory(func() eval.Relation { return eval.NewIterate(expr) }), nil
}

func applyUnpivot(m *Match) (any, error) {
	expr := m.Rex(0)
	return eval.Factory(func() eval.Relation { return eval.NewUnpivot(expr) }), nil
}

func applyFilter(m *Match) (any, error) {
	if err := checkCondition(m, 1, "filter predicate"); err != nil {
		return nil, err
	}
	input, pred, mode := m.Rel(0), m.Rex(1), m.Mode
	return eval.Factory(func() eval.Relation { return eval.NewFilter(input(), pred, mode) }), nil
}

func applyProject(m *Match) (any, error) {
	input, exprs := m.Rel(0), m.Rexes(1, m.Len()-1)
	return eval.Factory(func() eval.Relation { return eval.NewProject(input(), exprs...) }), nil
}

func applyJoin(m *Match) (any, error) {
	op := m.Operator.(*plan.RelJoin)
	if err := checkCondition(m, 2, "join condition"); err != nil {
		return nil, err
	}
	left, right, cond, mode := m.Rel(0), m.Rel(1), m.Rex(2), m.Mode
	lt, rt, kind := op.Left.Type(), op.Right.Type(), op.JoinType
	return eval.Factory(func() eval.Relation {
		return eval.NewJoin(left(), right(), cond, kind, mode, lt, rt)
	}), nil
}

func applyCorrelate(m *Match) (any, error) {
	op := m.Operator.(*plan.RelCorrelate)
	if op.JoinType != plan.JoinInner && op.JoinType != plan.JoinLeft {
		return nil, perr(CodeUnsupported, op, "lateral %s join is not supported", op.JoinType)
	}
	left, right, kind, rt := m.Rel(0), m.Rel(1), op.JoinType, op.Right.Type()
	return eval.Factory(func() eval.Relation { return eval.NewCorrelate(left(), right, kind, rt) }), nil
}

func applyAggregate(m *Match) (any, error) {
	op := m.Operator.(*plan.RelAggregate)
	groups := m.Rexes(1, len(op.Groups))
	next := 1 + len(op.Groups)
	measures := make([]eval.Measure, len(op.Measures))
	for i, ms := range op.Measures {
		if ms.Agg == nil {
			return nil, unresolved(m, ms.Function, ms.Args, m.Functions.HasAggregation(ms.Function), "aggregate")
		}
		measures[i] = eval.Measure{Agg: ms.Agg, Args: m.Rexes(next, len(ms.Args)), Distinct: ms.Distinct}
		next += len(ms.Args)
	}
	input := m.Rel(0)
	return eval.Factory(func() eval.Relation { return eval.NewAggregate(input(), groups, measures) }), nil
}

func sortKeys(m *Match, from int, cs []plan.Collation) []eval.SortKey {
	keys := make([]eval.SortKey, len(cs))
	for i, c := range cs {
		keys[i] = eval.SortKey{Expr: m.Rex(from + i), Order: c.Order, Nulls: c.Nulls}
	}
	return keys
}

func applySort(m *Match) (any, error) {
	op := m.Operator.(*plan.RelSort)
	input, keys := m.Rel(0), sortKeys(m, 1, op.Collations)
	return eval.Factory(func() eval.Relation { return eval.NewSort(input(), keys...) }), nil
}

func checkCount(m *Match, where string) error {
	if t := m.TypeOf(1); !maybe(t, isCount) {
		return perr(CodeTypeMismatch, m.Operator, "%s must be an integer, got %s", where, t)
	}
	return nil
}

func applyLimit(m *Match) (any, error) {
	if err := checkCount(m, "LIMIT"); err != nil {
		return nil, err
	}
	input, count := m.Rel(0), m.Rex(1)
	return eval.Factory(func() eval.Relation { return eval.NewLimit(input(), count) }), nil
}

func applyOffset(m *Match) (any, error) {
	if err := checkCount(m, "OFFSET"); err != nil {
		return nil, err
	}
	input, count := m.Rel(0), m.Rex(1)
	return eval.Factory(func() eval.Relation { return eval.NewOffset(input(), count) }), nil
}

func applyDistinct(m *Match) (any, error) {
	input := m.Rel(0)
	return eval.Factory(func() eval.Relation { return eval.NewDistinct(input()) }), nil
}

func applySetOp(m *Match) (any, error) {
	var (
		op   eval.SetOp
		all  bool
		l, r plan.Rel
	)
	switch o := m.Operator.(type) {
	case *plan.RelUnion:
		op, all, l, r = eval.SetUnion, o.All, o.Left, o.Right
	case *plan.RelIntersect:
		op, all, l, r = eval.SetIntersect, o.All, o.Left, o.Right
	case *plan.RelExcept:
		op, all, l, r = eval.SetExcept, o.All, o.Left, o.Right
	default:
		return nil, fmt.Errorf("not a set operator: %T", m.Operator)
	}
	if l.Type().Size() != r.Type().Size() {
		return nil, perr(CodeTypeMismatch, m.Operator, "operands have %d and %d columns", l.Type().Size(), r.Type().Size())
	}
	left, right := m.Rel(0), m.Rel(1)
	return eval.Factory(func() eval.Relation { return eval.NewSetOp(op, all, left(), right()) }), nil
}

func applyWindow(m *Match) (any, error) {
	op := m.Operator.(*plan.RelWindow)
	partitions := m.Rexes(1, len(op.Partitions))
	next := 1 + len(op.Partitions)
	keys := sortKeys(m, next, op.Collations)
	next += len(op.Collations)
	calls := make([]eval.WindowCall, len(op.Functions))
	for i, w := range op.Functions {
		if w.Window == nil {
			if _, ok := m.Functions.Window(w.Function); ok {
				return nil, perr(CodeTypeMismatch, op, "window function %s does not take %d arguments", w.Function, len(w.Args))
			}
			return nil, perr(CodeUnknownFunction, op, "unknown window function %s", w.Function)
		}
		calls[i] = eval.WindowCall{Fn: w.Window, Args: m.Rexes(next, len(w.Args))}
		next += len(w.Args)
	}
	input := m.Rel(0)
	return eval.Factory(func() eval.Relation { return eval.NewWindow(input(), partitions, keys, calls...) }), nil
}

func applyWith(m *Match) (any, error) {
	n := m.Len() - 1
	elements, body := m.Rexes(0, n), m.Rel(n)
	return eval.Factory(func() eval.Relation { return eval.NewWith(body(), elements...) }), nil
}

func applyExclude(m *Match) (any, error) {
	op := m.Operator.(*plan.RelExclude)
	width := op.Input.Type().Size()
	for _, p := range op.Paths {
		if p.Column < 0 || p.Column >= width {
			return nil, perr(CodeInvalidPlan, op, "exclude column %d out of range for %d columns", p.Column, width)
		}
	}
	input, paths := m.Rel(0), op.Paths
	return eval.Factory(func() eval.Relation { return eval.NewExclude(input(), paths...) }), nil
}

func applyLit(m *Match) (any, error) {
	return eval.Literal(m.Operator.(*plan.RexLit).Value), nil
}

func applyVar(m *Match) (any, error) {
	v := m.Operator.(*plan.RexVar)
	return eval.Variable(v.Depth, v.Offset), nil
}

func applyTable(m *Match) (any, error) {
	return eval.TableRef(m.Operator.(*plan.RexTable).Name), nil
}

func applyPathIndex(m *Match) (any, error) {
	return eval.PathIndex(m.Rex(0), m.Rex(1)), nil
}

func applyPathKey(m *Match) (any, error) {
	return eval.PathKey(m.Rex(0), m.Rex(1)), nil
}

func applyPathSymbol(m *Match) (any, error) {
	return eval.PathSymbol(m.Rex(0), m.Operator.(*plan.RexPathSymbol).Symbol), nil
}

func isStaticCall(op plan.Operator) bool {
	return op.(*plan.RexCall).Fn != nil
}

func applyStaticCall(m *Match) (any, error) {
	c := m.Operator.(*plan.RexCall)
	return eval.Call(c.Fn, m.Rexes(0, m.Len())...), nil
}

func applyDynamicCall(m *Match) (any, error) {
	c := m.Operator.(*plan.RexCall)
	if len(c.Candidates) == 0 {
		return nil, unresolved(m, c.Name, c.Args, m.Functions.HasFunction(c.Name), "function")
	}
	return eval.DynamicCall(c.Name, c.Candidates, m.Rexes(0, m.Len())...), nil
}

// unresolved reports a call no overload accepts: a type mismatch when the
// name is known, an unknown function otherwise.
func unresolved(m *Match, name string, args []plan.Rex, known bool, what string) *PError {
	if !known {
		return perr(CodeUnknownFunction, m.Operator, "unknown %s %s", what, name)
	}
	ts := make([]string, len(args))
	for i, a := range args {
		ts[i] = a.Type().String()
	}
	return perr(CodeTypeMismatch, m.Operator, "no overload of %s accepts (%s)", name, strings.Join(ts, ", "))
}

func applyCase(m *Match) (any, error) {
	c := m.Operator.(*plan.RexCase)
	branches := make([]eval.CaseBranch, len(c.Branches))
	for i := range c.Branches {
		if err := checkCondition(m, 2*i, "CASE condition"); err != nil {
			return nil, err
		}
		branches[i] = eval.CaseBranch{Condition: m.Rex(2 * i), Result: m.Rex(2*i + 1)}
	}
	return eval.Case(m.Rex(m.Len()-1), branches...), nil
}

func applyCast(m *Match) (any, error) {
	return eval.Cast(m.Rex(0), m.Operator.(*plan.RexCast).Target), nil
}

func applyCoalesce(m *Match) (any, error) {
	return eval.Coalesce(m.Rexes(0, m.Len())...), nil
}

func applyNullIf(m *Match) (any, error) {
	return eval.NullIf(m.Rex(0), m.Rex(1)), nil
}

func applyCollection(m *Match) (any, error) {
	c := m.Operator.(*plan.RexCollection)
	return eval.Collection(c.Type(), m.Rexes(0, m.Len())...), nil
}

func applyStruct(m *Match) (any, error) {
	s := m.Operator.(*plan.RexStruct)
	entries := make([]eval.StructEntry, len(s.Fields))
	for i, f := range s.Fields {
		if t := f.Key.Type(); !maybe(t, types.Kind.IsText) {
			return nil, perr(CodeTypeMismatch, s, "struct key must be text, got %s", t)
		}
		entries[i] = eval.StructEntry{Key: m.Rex(2 * i), Value: m.Rex(2*i + 1)}
	}
	return eval.Struct(entries...), nil
}

func applySpread(m *Match) (any, error) {
	return eval.Spread(m.Rexes(0, m.Len())...), nil
}

func applySelect(m *Match) (any, error) {
	s := m.Operator.(*plan.RexSelect)
	return eval.Select(s.Type(), m.Rel(0), m.Rex(1)), nil
}

func applySubquery(m *Match) (any, error) {
	s := m.Operator.(*plan.RexSubquery)
	return eval.Subquery(m.Rel(0), m.Rex(1), s.Coercion == plan.CoerceScalar), nil
}

func applyPivot(m *Match) (any, error) {
	return eval.Pivot(m.Rel(0), m.Rex(1), m.Rex(2)), nil
}

func applyError(m *Match) (any, error) {
	return eval.Fail(m.Operator.(*plan.RexError).Message), nil
}
