package compiler_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/testutil"
	"github.com/roach88/pql/internal/types"
)

var kvRow = types.StructOf(types.F("k", types.Integer()), types.F("v", types.Integer()))

func kv(k, v int32) datum.Datum {
	return datum.Struct(datum.NewField("k", datum.Int(k)), datum.NewField("v", datum.Int(v)))
}

func session(t *testing.T) *catalog.Session {
	t.Helper()
	mem := catalog.NewMemory("db")
	_, err := mem.Put("t", datum.Bag(kv(1, 2), kv(1, 3), kv(2, 5)))
	require.NoError(t, err)
	return catalog.NewSession(mem)
}

func key(name string) plan.Rex { return plan.Lit(datum.String(name)) }

// sumByKey is SELECT k, SUM(v) AS sum FROM t GROUP BY k.
func sumByKey() *plan.Plan {
	reg := fn.Builtins()
	scan := plan.NewScan(plan.Table("t", types.Bag(kvRow)), "r")
	agg := plan.NewAggregate(scan,
		[]plan.Binding{plan.B("k", plan.PathSymbol(plan.Var(0, 0, kvRow), "k"))},
		[]plan.Measure{plan.NewMeasure(reg, "sum", "sum", false, plan.PathSymbol(plan.Var(0, 0, kvRow), "v"))},
	)
	out := agg.Type()
	ctor := plan.Struct(
		plan.StructField{Key: key("k"), Value: plan.Var(0, 0, out.Field(0).Type)},
		plan.StructField{Key: key("sum"), Value: plan.Var(0, 1, out.Field(1).Type)},
	)
	return plan.NewQuery(plan.Select(agg, ctor))
}

func run(t *testing.T, stmt *compiler.Statement, s *catalog.Session) string {
	t.Helper()
	res, err := stmt.Execute(s)
	require.NoError(t, err)
	q, ok := res.(compiler.QueryResult)
	require.True(t, ok, "expected a query result, got %T", res)
	v, err := datum.Materialize(q.Value)
	require.NoError(t, err)
	return v.String()
}

func TestPrepare_AggregateSumByKey(t *testing.T) {
	stmt, err := compiler.New().Prepare(sumByKey(), compiler.ModeStrict, nil)
	require.NoError(t, err)

	assert.Equal(t, "<<{'k': 1, 'sum': 5}, {'k': 2, 'sum': 5}>>", run(t, stmt, session(t)))
}

func TestExecute_Deterministic(t *testing.T) {
	stmt, err := compiler.New().Prepare(sumByKey(), compiler.ModeStrict, nil)
	require.NoError(t, err)
	s := session(t)

	first := run(t, stmt, s)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run(t, stmt, s))
	}
}

func TestPrepare_TwiceGivesIndependentStatements(t *testing.T) {
	c := compiler.New(compiler.WithIDGenerator(&testutil.SequentialIDs{}))
	p := sumByKey()

	a, err := c.Prepare(p, compiler.ModeStrict, nil)
	require.NoError(t, err)
	b, err := c.Prepare(p, compiler.ModeStrict, nil)
	require.NoError(t, err)

	assert.Equal(t, "stmt-1", a.ID)
	assert.Equal(t, "stmt-2", b.ID)
	assert.NotSame(t, a, b)

	// Interleaved executions do not disturb each other.
	s := session(t)
	resA, err := a.Execute(s)
	require.NoError(t, err)
	resB, err := b.Execute(s)
	require.NoError(t, err)

	itA, err := resA.(compiler.QueryResult).Value.Iterate()
	require.NoError(t, err)
	itB, err := resB.(compiler.QueryResult).Value.Iterate()
	require.NoError(t, err)
	first, ok, err := itA.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, itA.Close())

	var n int
	for {
		_, ok, err := itB.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}
	require.NoError(t, itB.Close())

	assert.Equal(t, "{'k': 1, 'sum': 5}", first.String())
	assert.Equal(t, 2, n)
}

func TestStrategyPriority_FirstRegisteredWins(t *testing.T) {
	var secondCalled bool
	first := compiler.Strategy{
		Name:    "filter_first",
		Pattern: compiler.Of[*plan.RelFilter](),
		Apply: func(m *compiler.Match) (any, error) {
			input := m.Rel(0)
			return eval.Factory(func() eval.Relation { return eval.NewLimit(input(), eval.Literal(datum.Int(1))) }), nil
		},
	}
	second := compiler.Strategy{
		Name:    "filter_second",
		Pattern: compiler.Of[*plan.RelFilter](),
		Apply: func(*compiler.Match) (any, error) {
			secondCalled = true
			return nil, errors.New("must not be applied")
		},
	}
	c := compiler.New(compiler.WithStrategies(first, second))

	scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1), datum.Int(2))), "x")
	filter := plan.NewFilter(scan, plan.True())
	stmt, err := c.Prepare(plan.NewQuery(plan.Select(filter, plan.Var(0, 0, types.Integer()))), compiler.ModeStrict, nil)
	require.NoError(t, err)

	assert.False(t, secondCalled)
	name, ok := stmt.Strategy(filter)
	require.True(t, ok)
	assert.Equal(t, "filter_first", name)
	assert.Equal(t, "[1]", run(t, stmt, session(t)))
}

func TestStrategyPriority_NoBacktracking(t *testing.T) {
	failing := compiler.Strategy{
		Name:    "broken_filter",
		Pattern: compiler.Of[*plan.RelFilter](),
		Apply: func(*compiler.Match) (any, error) {
			return nil, errors.New("boom")
		},
	}
	c := compiler.New(compiler.WithStrategies(failing))

	scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1))), "x")
	_, err := c.Prepare(plan.NewQuery(plan.Select(plan.NewFilter(scan, plan.True()), plan.Var(0, 0, types.Integer()))), compiler.ModeStrict, nil)

	var pe *compiler.PError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, compiler.CodeStrategyFailed, pe.Code)
	assert.Contains(t, pe.Message, "broken_filter")
}

func TestPattern_ChildPatterns(t *testing.T) {
	scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1))), "x")
	filter := plan.NewFilter(scan, plan.True())

	tests := []struct {
		name    string
		pattern compiler.Pattern
		want    bool
	}{
		{"node only", compiler.Of[*plan.RelFilter](), true},
		{"matching child", compiler.Of[*plan.RelFilter]().With(compiler.Of[*plan.RelScan]()), true},
		{"wrong child", compiler.Of[*plan.RelFilter]().With(compiler.Of[*plan.RelProject]()), false},
		{"too many children", compiler.Of[*plan.RelFilter]().With(compiler.Any(), compiler.Any(), compiler.Any()), false},
		{"wrong node", compiler.Of[*plan.RelScan](), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pattern.Matches(filter))
		})
	}
	assert.Equal(t, "RelFilter(RelScan)", compiler.Of[*plan.RelFilter]().With(compiler.Of[*plan.RelScan]()).String())
}

func TestStrategy_WrongOperandKindIsReported(t *testing.T) {
	tests := []struct {
		name  string
		apply func(m *compiler.Match) (any, error)
		want  string
	}{
		{
			name: "expression read as relation",
			apply: func(m *compiler.Match) (any, error) {
				return m.Rel(1), nil
			},
			want: "operand 1 is",
		},
		{
			name: "relation read as expression",
			apply: func(m *compiler.Match) (any, error) {
				return m.Rex(0), nil
			},
			want: "not an expression",
		},
		{
			name: "operand out of range",
			apply: func(m *compiler.Match) (any, error) {
				return m.Rel(5), nil
			},
			want: "operand 5 out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			misread := compiler.Strategy{
				Name:    "misread_filter",
				Pattern: compiler.Of[*plan.RelFilter](),
				Apply:   tt.apply,
			}
			c := compiler.New(compiler.WithStrategies(misread))

			scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1))), "x")
			_, err := c.Prepare(plan.NewQuery(plan.Select(plan.NewFilter(scan, plan.True()), plan.Var(0, 0, types.Integer()))), compiler.ModeStrict, nil)

			var pe *compiler.PError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, compiler.CodeStrategyFailed, pe.Code)
			assert.Contains(t, pe.Message, "misread_filter")
			assert.Contains(t, pe.Message, tt.want)
		})
	}
}

func TestPrepare_NoStrategy(t *testing.T) {
	var kept []compiler.Strategy
	for _, s := range compiler.DefaultStrategies() {
		if s.Name != "filter" {
			kept = append(kept, s)
		}
	}
	c := compiler.New(compiler.ReplaceStrategies(kept...))

	scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1))), "x")
	_, err := c.Prepare(plan.NewQuery(plan.Select(plan.NewFilter(scan, plan.True()), plan.Var(0, 0, types.Integer()))), compiler.ModeStrict, nil)

	require.Error(t, err)
	assert.True(t, compiler.IsNoStrategy(err))
	assert.Contains(t, err.Error(), "E201")
}

func TestPrepare_TypeMismatch(t *testing.T) {
	scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1))), "x")
	filter := plan.NewFilter(scan, plan.Lit(datum.Int(1)))

	_, err := compiler.New().Prepare(plan.NewQuery(plan.Select(filter, plan.Var(0, 0, types.Integer()))), compiler.ModeStrict, nil)

	require.Error(t, err)
	assert.True(t, compiler.IsTypeMismatch(err))
}

func TestPrepare_UnknownFunction(t *testing.T) {
	call := plan.NewCall(fn.Builtins(), "frobnicate", plan.Lit(datum.Int(1)))

	_, err := compiler.New().Prepare(plan.NewQuery(call), compiler.ModeStrict, nil)

	var pe *compiler.PError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, compiler.CodeUnknownFunction, pe.Code)
}

func TestPrepare_AbortsOnFirstErrorByDefault(t *testing.T) {
	calls := 0
	counting := compiler.Strategy{
		Name:    "count_literals",
		Pattern: compiler.Of[*plan.RexLit](),
		Apply: func(*compiler.Match) (any, error) {
			calls++
			return nil, errors.New("no literals today")
		},
	}
	c := compiler.New(compiler.WithStrategies(counting))
	list := plan.Collection(types.KindList, plan.Lit(datum.Int(1)), plan.Lit(datum.Int(2)))

	_, err := c.Prepare(plan.NewQuery(list), compiler.ModeStrict, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPrepare_CollectingListenerGathersAllErrors(t *testing.T) {
	scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1))), "x")
	filter := plan.NewFilter(scan, plan.Lit(datum.Int(1)))
	ctor := plan.NewCall(fn.Builtins(), "frobnicate", plan.Var(0, 0, types.Integer()))
	listener := &compiler.CollectingListener{}

	_, err := compiler.New().Prepare(plan.NewQuery(plan.Select(filter, ctor)), compiler.ModeStrict, &compiler.Context{Listener: listener})

	require.Error(t, err)
	errs := listener.Errors()
	require.Len(t, errs, 2)
	// post-order: the filter is compiled before the constructor
	assert.Equal(t, compiler.CodeTypeMismatch, errs[0].Code)
	assert.Equal(t, compiler.CodeUnknownFunction, errs[1].Code)
	assert.True(t, compiler.IsTypeMismatch(err))
	assert.Contains(t, err.Error(), "2 error(s)")
}

func TestPrepare_InvalidPlan(t *testing.T) {
	lit := plan.Lit(datum.Int(1))
	shared := plan.Collection(types.KindList, lit, lit)

	_, err := compiler.New().Prepare(plan.NewQuery(shared), compiler.ModeStrict, nil)

	var pe *compiler.PError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, compiler.CodeInvalidPlan, pe.Code)
}

func TestPrepare_StrictRejectsScanOfScalar(t *testing.T) {
	build := func() *plan.Plan {
		scan := plan.NewScan(plan.Lit(datum.Int(5)), "x")
		return plan.NewQuery(plan.Select(scan, plan.Var(0, 0, types.Integer())))
	}

	_, err := compiler.New().Prepare(build(), compiler.ModeStrict, nil)
	assert.True(t, compiler.IsTypeMismatch(err))

	stmt, err := compiler.New().Prepare(build(), compiler.ModePermissive, nil)
	require.NoError(t, err)
	assert.Equal(t, compiler.ModePermissive, stmt.Mode())
	assert.Equal(t, "<<5>>", run(t, stmt, session(t)))
}

func TestExecute_PermissiveTurnsDataErrorsIntoMissing(t *testing.T) {
	build := func() *plan.Plan {
		return plan.NewQuery(plan.PathSymbol(plan.Lit(datum.Int(1)), "a"))
	}

	strict, err := compiler.New().Prepare(build(), compiler.ModeStrict, nil)
	require.NoError(t, err)
	_, err = strict.Execute(session(t))
	var tce *eval.TypeCheckError
	require.ErrorAs(t, err, &tce)

	permissive, err := compiler.New().Prepare(build(), compiler.ModePermissive, nil)
	require.NoError(t, err)
	assert.Equal(t, "MISSING", run(t, permissive, session(t)))
}

func TestExecute_JoinClosesLeftWhenRightFailsToOpen(t *testing.T) {
	left := testutil.Rows(eval.Record{datum.Int(1)})
	right := testutil.FailingOpen(nil)
	fixed := func(name string, r *testutil.Relation) compiler.Strategy {
		return compiler.Strategy{
			Name: "fixed_" + name,
			Pattern: compiler.Of[*plan.RelScan]().Where(func(op plan.Operator) bool {
				return op.(*plan.RelScan).As == name
			}),
			Apply: func(*compiler.Match) (any, error) { return r.Factory(), nil },
		}
	}
	c := compiler.New(compiler.WithStrategies(fixed("l", left), fixed("r", right)))

	l := plan.NewScan(plan.Lit(datum.Bag()), "l")
	r := plan.NewScan(plan.Lit(datum.Bag()), "r")
	join := plan.NewJoin(l, r, nil, plan.JoinInner)
	stmt, err := c.Prepare(plan.NewQuery(plan.Select(join, plan.Var(0, 0, types.Dynamic()))), compiler.ModeStrict, nil)
	require.NoError(t, err)

	res, err := stmt.Execute(session(t))
	require.NoError(t, err)
	_, err = datum.Materialize(res.(compiler.QueryResult).Value)

	require.ErrorIs(t, err, testutil.ErrInjected)
	assert.EqualValues(t, 1, left.Opens.Load())
	assert.EqualValues(t, 1, left.Closes.Load())
	assert.EqualValues(t, 0, right.Closes.Load())
}

func TestExecute_Effect(t *testing.T) {
	mem := catalog.NewMemory("db")
	out, err := mem.Put("out", datum.Bag(datum.Int(0)))
	require.NoError(t, err)
	s := catalog.NewSession(mem)

	src := plan.Collection(types.KindBag, plan.Lit(datum.Int(1)), plan.Lit(datum.Int(2)))
	stmt, err := compiler.New().Prepare(plan.NewEffect("insert", "out", src), compiler.ModeStrict, nil)
	require.NoError(t, err)

	res, err := stmt.Execute(s)
	require.NoError(t, err)
	assert.Equal(t, compiler.EffectResult{Name: "insert", Target: "out", Rows: 2}, res)

	v, err := out.Datum()
	require.NoError(t, err)
	assert.Equal(t, "<<0, 1, 2>>", v.String())
}

func TestExecute_EffectTargetMissing(t *testing.T) {
	src := plan.Collection(types.KindBag, plan.Lit(datum.Int(1)))
	stmt, err := compiler.New().Prepare(plan.NewEffect("insert", "nowhere", src), compiler.ModeStrict, nil)
	require.NoError(t, err)

	_, err = stmt.Execute(session(t))
	require.ErrorIs(t, err, eval.ErrTableNotFound)
}

func TestExecute_UsesContextPath(t *testing.T) {
	mem := catalog.NewMemory("db")
	_, err := mem.Put("sales.t", datum.Bag(datum.Int(7)))
	require.NoError(t, err)

	stmt, err := compiler.New().Prepare(plan.NewQuery(plan.Table("t", types.Bag(types.Integer()))), compiler.ModeStrict,
		&compiler.Context{Path: []string{"sales"}})
	require.NoError(t, err)

	assert.Equal(t, "<<7>>", run(t, stmt, catalog.NewSession(mem)))
}

func TestStatement_Explain(t *testing.T) {
	stmt, err := compiler.New().Prepare(sumByKey(), compiler.ModeStrict, nil)
	require.NoError(t, err)

	out := stmt.Explain()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "Query", lines[0])
	assert.Contains(t, out, "[hash_aggregate]")
	assert.Contains(t, out, "[scan]")
	assert.Contains(t, out, "[select]")
}

func TestStrategies_ReturnsCopyInOrder(t *testing.T) {
	extra := compiler.Strategy{Name: "extra", Pattern: compiler.Any(), Apply: func(*compiler.Match) (any, error) { return nil, nil }}
	c := compiler.New(compiler.WithStrategies(extra))

	got := c.Strategies()
	require.NotEmpty(t, got)
	assert.Equal(t, "extra", got[0].Name)
	got[0].Name = "changed"
	assert.Equal(t, "extra", c.Strategies()[0].Name)
}

func TestStrategy_WrongResultKind(t *testing.T) {
	bad := compiler.Strategy{
		Name:    "scan_returns_expression",
		Pattern: compiler.Of[*plan.RelScan](),
		Apply:   func(*compiler.Match) (any, error) { return eval.Literal(datum.Int(1)), nil },
	}
	scan := plan.NewScan(plan.Lit(datum.List(datum.Int(1))), "x")

	_, err := compiler.New(compiler.WithStrategies(bad)).Prepare(plan.NewQuery(plan.Select(scan, plan.Var(0, 0, types.Integer()))), compiler.ModeStrict, nil)

	var pe *compiler.PError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, compiler.CodeStrategyFailed, pe.Code)
}
