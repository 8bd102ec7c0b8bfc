package eval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

func kv(k, v int32) datum.Datum {
	return datum.Struct(datum.NewField("k", datum.Int(k)), datum.NewField("v", datum.Int(v)))
}

func field(name string) eval.Expression {
	return eval.PathSymbol(eval.Variable(0, 0), name)
}

func sumOf(t *testing.T) *fn.Aggregation {
	t.Helper()
	agg, ok := fn.Builtins().ResolveAggregation("sum", []types.PType{types.Dynamic()})
	require.True(t, ok)
	return agg
}

func collect(t *testing.T, r eval.Relation) []eval.Record {
	t.Helper()
	rows, err := eval.Collect(r, eval.NewEnv(nil))
	require.NoError(t, err)
	return rows
}

func TestAggregate_SumByKeyInFirstSeenOrder(t *testing.T) {
	input := eval.NewScan(eval.Literal(datum.Bag(kv(1, 2), kv(1, 3), kv(2, 5))), eval.ModeStrict)
	agg := eval.NewAggregate(input,
		[]eval.Expression{field("k")},
		[]eval.Measure{{Agg: sumOf(t), Args: []eval.Expression{field("v")}}},
	)

	rows := collect(t, agg)
	assert.Equal(t, [][]int64{{1, 5}, {2, 5}}, ints(t, rows))
}

func TestAggregate_FirstSeenOrderNotSorted(t *testing.T) {
	input := eval.NewScan(eval.Literal(datum.List(kv(3, 1), kv(1, 1), kv(3, 1), kv(2, 1))), eval.ModeStrict)
	agg := eval.NewAggregate(input,
		[]eval.Expression{field("k")},
		[]eval.Measure{{Agg: sumOf(t), Args: []eval.Expression{field("v")}}},
	)
	assert.Equal(t, [][]int64{{3, 2}, {1, 1}, {2, 1}}, ints(t, collect(t, agg)))
}

func TestAggregate_NoGroupsOnEmptyInput(t *testing.T) {
	count, ok := fn.Builtins().ResolveAggregation("count_star", nil)
	require.True(t, ok)
	agg := eval.NewAggregate(eval.NewValues(), nil, []eval.Measure{
		{Agg: count},
		{Agg: sumOf(t), Args: []eval.Expression{eval.Variable(0, 0)}},
	})

	rows := collect(t, agg)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0][0].Int64())
	assert.True(t, rows[0][1].IsNull(), "SUM of nothing is NULL")
}

func TestAggregate_GroupedEmptyInputHasNoRows(t *testing.T) {
	agg := eval.NewAggregate(eval.NewValues(), []eval.Expression{eval.Variable(0, 0)}, nil)
	assert.Empty(t, collect(t, agg))
}

func TestAggregate_Distinct(t *testing.T) {
	in := eval.NewValues(intRow(1, 2), intRow(1, 2), intRow(1, 3), intRow(2, 2))
	agg := eval.NewAggregate(in,
		[]eval.Expression{eval.Variable(0, 0)},
		[]eval.Measure{
			{Agg: sumOf(t), Args: []eval.Expression{eval.Variable(0, 1)}, Distinct: true},
			{Agg: sumOf(t), Args: []eval.Expression{eval.Variable(0, 1)}},
		},
	)
	assert.Equal(t, [][]int64{{1, 5, 7}, {2, 2, 2}}, ints(t, collect(t, agg)))
}

func TestSort(t *testing.T) {
	null := eval.Record{datum.Null(types.Integer()), datum.Int(0)}
	in := func() eval.Relation {
		return eval.NewValues(intRow(2, 1), null, intRow(1, 2), intRow(2, 3))
	}

	asc := eval.NewSort(in(), eval.SortKey{Expr: eval.Variable(0, 0), Order: plan.Asc, Nulls: plan.NullsFirst})
	assert.Equal(t, [][]int64{{-1, 0}, {1, 2}, {2, 1}, {2, 3}}, ints(t, collect(t, asc)), "stable on ties")

	desc := eval.NewSort(in(), eval.SortKey{Expr: eval.Variable(0, 0), Order: plan.Desc, Nulls: plan.NullsLast})
	assert.Equal(t, [][]int64{{2, 1}, {2, 3}, {1, 2}, {-1, 0}}, ints(t, collect(t, desc)))

	descNullsFirst := eval.NewSort(in(), eval.SortKey{Expr: eval.Variable(0, 0), Order: plan.Desc, Nulls: plan.NullsFirst})
	assert.Equal(t, [][]int64{{-1, 0}, {2, 1}, {2, 3}, {1, 2}}, ints(t, collect(t, descNullsFirst)))
}

func TestSetOps(t *testing.T) {
	left := func() eval.Relation { return eval.NewValues(intRow(1), intRow(1), intRow(2), intRow(3)) }
	right := func() eval.Relation { return eval.NewValues(intRow(1), intRow(3), intRow(4)) }
	tests := []struct {
		op   eval.SetOp
		all  bool
		want [][]int64
	}{
		{eval.SetUnion, false, [][]int64{{1}, {2}, {3}, {4}}},
		{eval.SetUnion, true, [][]int64{{1}, {1}, {2}, {3}, {1}, {3}, {4}}},
		{eval.SetIntersect, false, [][]int64{{1}, {3}}},
		{eval.SetIntersect, true, [][]int64{{1}, {3}}},
		{eval.SetExcept, false, [][]int64{{2}}},
		{eval.SetExcept, true, [][]int64{{1}, {2}}},
	}
	for _, tt := range tests {
		name := tt.op.String()
		if tt.all {
			name += " ALL"
		}
		t.Run(name, func(t *testing.T) {
			r := eval.NewSetOp(tt.op, tt.all, left(), right())
			assert.Equal(t, tt.want, ints(t, collect(t, r)))
		})
	}
}

func TestFilter(t *testing.T) {
	in := func() eval.Relation {
		return eval.NewValues(
			eval.Record{datum.Bool(true)},
			eval.Record{datum.Bool(false)},
			eval.Record{datum.Null(types.Bool())},
			eval.Record{datum.Missing()},
			eval.Record{datum.Int(1)},
		)
	}

	_, err := eval.Collect(eval.NewFilter(in(), eval.Variable(0, 0), eval.ModeStrict), eval.NewEnv(nil))
	var tce *eval.TypeCheckError
	require.ErrorAs(t, err, &tce)
	assert.Equal(t, types.KindInteger, tce.Actual)

	rows := collect(t, eval.NewFilter(in(), eval.Variable(0, 0), eval.ModePermissive))
	require.Len(t, rows, 1)
	assert.True(t, rows[0][0].Boolean())
}

func TestLimitOffset(t *testing.T) {
	in := func() eval.Relation { return eval.NewValues(intRow(1), intRow(2), intRow(3), intRow(4)) }
	two := eval.Literal(datum.Int(2))

	assert.Equal(t, [][]int64{{1}, {2}}, ints(t, collect(t, eval.NewLimit(in(), two))))
	assert.Equal(t, [][]int64{{3}, {4}}, ints(t, collect(t, eval.NewOffset(in(), two))))
	assert.Equal(t, [][]int64{{3}}, ints(t, collect(t, eval.NewLimit(eval.NewOffset(in(), two), eval.Literal(datum.Int(1))))))

	_, err := eval.Collect(eval.NewLimit(in(), eval.Literal(datum.Int(-1))), eval.NewEnv(nil))
	var tce *eval.TypeCheckError
	assert.ErrorAs(t, err, &tce)

	_, err = eval.Collect(eval.NewLimit(in(), eval.Literal(datum.String("2"))), eval.NewEnv(nil))
	assert.ErrorAs(t, err, &tce)
}

func TestDistinct(t *testing.T) {
	in := eval.NewValues(intRow(2), intRow(1), eval.Record{datum.BigInt(2)}, intRow(1), intRow(3))
	assert.Equal(t, [][]int64{{2}, {1}, {3}}, ints(t, collect(t, eval.NewDistinct(in))))
}

func TestScanModes(t *testing.T) {
	scalar := eval.Literal(datum.Int(7))

	_, err := eval.Collect(eval.NewScan(scalar, eval.ModeStrict), eval.NewEnv(nil))
	var tce *eval.TypeCheckError
	require.ErrorAs(t, err, &tce)

	assert.Equal(t, [][]int64{{7}}, ints(t, collect(t, eval.NewScan(scalar, eval.ModePermissive))))
	assert.Equal(t, [][]int64{{7}}, ints(t, collect(t, eval.NewIterate(scalar))))
	assert.Empty(t, collect(t, eval.NewIterate(eval.Literal(datum.Missing()))))

	list := eval.Literal(datum.List(datum.Int(5), datum.Int(6)))
	assert.Equal(t, [][]int64{{5, 0}, {6, 1}}, ints(t, collect(t, eval.NewScanIndexed(list, eval.ModeStrict))))
}

func TestUnpivot(t *testing.T) {
	v := datum.Struct(datum.NewField("a", datum.Int(1)), datum.NewField("b", datum.Int(2)))
	rows := collect(t, eval.NewUnpivot(eval.Literal(v)))
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0][1].Text())
	assert.Equal(t, int64(2), rows[1][0].Int64())

	rows = collect(t, eval.NewUnpivot(eval.Literal(datum.Int(9))))
	require.Len(t, rows, 1)
	assert.Equal(t, "_1", rows[0][1].Text())

	assert.Empty(t, collect(t, eval.NewUnpivot(eval.Literal(datum.Missing()))))
}

func TestWindow(t *testing.T) {
	reg := fn.Builtins()
	rowNumber, _ := reg.Window("row_number")
	rank, _ := reg.Window("rank")
	lag, _ := reg.Window("lag")

	// (partition, value)
	in := eval.NewValues(intRow(2, 10), intRow(1, 30), intRow(1, 10), intRow(2, 5), intRow(1, 10))
	w := eval.NewWindow(in,
		[]eval.Expression{eval.Variable(0, 0)},
		[]eval.SortKey{{Expr: eval.Variable(0, 1), Order: plan.Asc, Nulls: plan.NullsFirst}},
		eval.WindowCall{Fn: rowNumber},
		eval.WindowCall{Fn: rank},
		eval.WindowCall{Fn: lag, Args: []eval.Expression{eval.Variable(0, 1)}},
	)

	// partitions in first-seen order: 2 then 1
	assert.Equal(t, [][]int64{
		{2, 5, 1, 1, -1},
		{2, 10, 2, 2, 5},
		{1, 10, 1, 1, -1},
		{1, 10, 2, 1, 10},
		{1, 30, 3, 3, 10},
	}, ints(t, collect(t, w)))
}

func TestExclude(t *testing.T) {
	inner := datum.Struct(datum.NewField("x", datum.Int(1)), datum.NewField("y", datum.Int(2)))
	row := datum.Struct(
		datum.NewField("a", inner),
		datum.NewField("b", datum.List(inner, inner)),
		datum.NewField("c", datum.Int(3)),
	)
	in := eval.NewValues(eval.Record{row, datum.Int(4)})
	ex := eval.NewExclude(in,
		plan.ExcludePath{Column: 0, Steps: []plan.ExcludeStep{{Kind: plan.StepKey, Key: "a"}, {Kind: plan.StepSymbol, Key: "X"}}},
		plan.ExcludePath{Column: 0, Steps: []plan.ExcludeStep{{Kind: plan.StepKey, Key: "b"}, {Kind: plan.StepAllElements}, {Kind: plan.StepKey, Key: "y"}}},
		plan.ExcludePath{Column: 0, Steps: []plan.ExcludeStep{{Kind: plan.StepKey, Key: "missing"}}},
		plan.ExcludePath{Column: 1},
	)

	rows := collect(t, ex)
	require.Len(t, rows, 1)
	got := rows[0][0]
	assert.Equal(t, "{'a': {'y': 2}, 'b': [{'x': 1}, {'x': 1}], 'c': 3}", got.String())
	assert.True(t, rows[0][1].IsMissing())
	// the input value is untouched
	assert.Equal(t, "{'a': {'x': 1, 'y': 2}, 'b': [{'x': 1, 'y': 2}, {'x': 1, 'y': 2}], 'c': 3}", row.String())
}

func TestWith_ElementsEvaluatedOnce(t *testing.T) {
	calls := 0
	element := eval.ExprFunc(func(*eval.Env) (datum.Datum, error) {
		calls++
		return datum.Int(42), nil
	})
	body := eval.NewProject(eval.NewValues(intRow(1), intRow(2)), eval.Variable(1, 0))
	rows := collect(t, eval.NewWith(body, element))
	assert.Equal(t, [][]int64{{42}, {42}}, ints(t, rows))
	assert.Equal(t, 1, calls)
}
