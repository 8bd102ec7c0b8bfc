package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

func lit(n int32) *RexLit { return Lit(datum.Int(n)) }

func TestScan_TypeFromCollection(t *testing.T) {
	bag := Table("t", types.Bag(types.Integer()))
	list := Lit(datum.List(datum.Int(1), datum.Int(2)))

	s := NewScan(bag, "x")
	assert.Equal(t, "(x INTEGER)", s.Type().String())
	assert.False(t, s.Type().IsOrdered())

	s = NewScan(list, "x")
	assert.True(t, s.Type().IsOrdered())

	si := NewScanIndexed(list, "x", "i")
	require.Equal(t, 2, si.Type().Size())
	assert.Equal(t, types.KindBigInt, si.Type().Field(1).Type.Kind())

	dyn := NewScan(Var(0, 0, types.Dynamic()), "x")
	assert.Equal(t, types.KindDynamic, dyn.Type().Field(0).Type.Kind())
}

func TestFilter_KeepsInputType(t *testing.T) {
	scan := NewScan(Lit(datum.List(datum.Int(1))), "x")
	f := NewFilter(scan, True())

	assert.Equal(t, scan.Type().String(), f.Type().String())
	assert.Equal(t, []Operator{scan, f.Predicate}, f.Children())
}

func TestProject_Types(t *testing.T) {
	reg := fn.Builtins()
	scan := NewScan(Table("t", types.Bag(types.Integer())), "x")
	x := Var(0, 0, types.Integer())

	p := NewProject(scan, B("x", x), B("y", NewCall(reg, "plus", x, Lit(datum.BigInt(1)))))

	assert.Equal(t, "(x INTEGER, y BIGINT)", p.Type().String())
	require.Len(t, p.Children(), 3)
	assert.Same(t, scan, p.Children()[0])
}

func TestJoin_ConcatenatesAndDefaultsCondition(t *testing.T) {
	l := NewScan(Lit(datum.List(datum.Int(1))), "a")
	r := NewScan(Table("t", types.Bag(types.String())), "b")

	j := NewJoin(l, r, nil, JoinLeft)

	assert.Equal(t, "(a INTEGER, b STRING)", j.Type().String())
	assert.False(t, j.Type().IsOrdered())
	cond, ok := j.Condition.(*RexLit)
	require.True(t, ok)
	assert.True(t, cond.Value.Boolean())
	assert.Len(t, j.Children(), 3)
}

func TestAggregate_GroupsThenMeasures(t *testing.T) {
	reg := fn.Builtins()
	row := types.StructOf(types.F("k", types.Integer()), types.F("v", types.Integer()))
	scan := NewScan(Table("t", types.Bag(row)), "r")
	k := PathSymbol(Var(0, 0, row), "k")
	v := PathSymbol(Var(0, 0, row), "v")

	agg := NewAggregate(scan,
		[]Binding{B("k", k)},
		[]Measure{NewMeasure(reg, "sum", "sum", false, v), NewMeasure(reg, "n", "count_star", false)},
	)

	assert.Equal(t, "(k INTEGER, sum BIGINT, n BIGINT)", agg.Type().String())
	assert.Equal(t, []Operator{scan, k, v}, agg.Children())
}

func TestMeasure_UnresolvedIsDynamic(t *testing.T) {
	m := NewMeasure(fn.Builtins(), "x", "nope", false, lit(1))

	assert.Nil(t, m.Agg)
	assert.Equal(t, types.KindDynamic, m.Type().Kind())
}

func TestNewCall_Resolution(t *testing.T) {
	reg := fn.Builtins()

	static := NewCall(reg, "PLUS", lit(1), lit(2))
	require.NotNil(t, static.Fn)
	assert.Equal(t, "plus", static.Name)
	assert.Equal(t, types.KindInteger, static.Type().Kind())

	dynamic := NewCall(reg, "plus", Var(0, 0, types.Dynamic()), lit(2))
	assert.Nil(t, dynamic.Fn)
	assert.NotEmpty(t, dynamic.Candidates)
	assert.True(t, dynamic.IsResolved())

	bad := NewCall(reg, "plus", Lit(datum.String("a")), lit(2))
	assert.False(t, bad.IsResolved())
	assert.Equal(t, types.KindDynamic, bad.Type().Kind())
}

func TestPaths_Types(t *testing.T) {
	row := types.StructOf(types.F("Name", types.String()))
	root := Var(0, 0, row)

	assert.Equal(t, types.KindString, PathSymbol(root, "name").Type().Kind())
	assert.Equal(t, types.KindUnknown, PathKey(root, Lit(datum.String("name"))).Type().Kind())
	assert.Equal(t, types.KindString, PathKey(root, Lit(datum.String("Name"))).Type().Kind())
	assert.Equal(t, types.KindDynamic, PathSymbol(Var(0, 0, types.Struct()), "x").Type().Kind())

	idx := PathIndex(Lit(datum.List(datum.Int(1))), lit(0))
	assert.Equal(t, types.KindInteger, idx.Type().Kind())
}

func TestConstructors_Types(t *testing.T) {
	s := Struct(
		StructField{Key: Lit(datum.String("a")), Value: lit(1)},
		StructField{Key: Lit(datum.String("b")), Value: Lit(datum.String("x"))},
	)
	require.True(t, s.Type().IsClosed())
	assert.Equal(t, "a", s.Type().Fields()[0].Name)

	open := Struct(StructField{Key: Var(0, 0, types.String()), Value: lit(1)})
	assert.False(t, open.Type().IsClosed())

	assert.Equal(t, types.KindList, Collection(types.KindList, lit(1), lit(2)).Type().Kind())
	assert.Equal(t, types.KindDynamic, Collection(types.KindBag, lit(1), Lit(datum.String("a"))).Type().Element().Kind())

	sp := Spread(s, Struct(StructField{Key: Lit(datum.String("c")), Value: lit(3)}))
	assert.Len(t, sp.Type().Fields(), 3)

	c := Case(nil, Branch{Condition: True(), Result: lit(1)})
	assert.Equal(t, types.KindInteger, c.Type().Kind())
	assert.Equal(t, types.KindInteger, Coalesce(lit(1), lit(2)).Type().Kind())
	assert.Equal(t, types.KindString, Cast(lit(1), types.String()).Type().Kind())
}

func TestSelect_OrderedInputGivesList(t *testing.T) {
	ordered := NewSort(NewScan(Table("t", types.Bag(types.Integer())), "x"))
	unordered := NewScan(Table("t", types.Bag(types.Integer())), "x")

	assert.Equal(t, types.KindList, Select(ordered, Var(0, 0, types.Integer())).Type().Kind())
	assert.Equal(t, types.KindBag, Select(unordered, Var(0, 0, types.Integer())).Type().Kind())
}

func TestSubquery_ScalarType(t *testing.T) {
	scan := NewScan(Table("t", types.Bag(types.Integer())), "x")
	ctor := Struct(StructField{Key: Lit(datum.String("x")), Value: Var(0, 0, types.Integer())})

	assert.Equal(t, types.KindInteger, Subquery(scan, ctor, CoerceScalar).Type().Kind())
	assert.Equal(t, types.KindStruct, Subquery(scan, ctor, CoerceRow).Type().Kind())
}

func TestWindow_AppendsFunctionColumns(t *testing.T) {
	reg := fn.Builtins()
	scan := NewScan(Table("t", types.Bag(types.Integer())), "x")
	x := Var(0, 0, types.Integer())

	w := NewWindow(scan, []Rex{x}, []Collation{C(x, Asc)},
		NewWindowCall(reg, "rn", "row_number"),
		NewWindowCall(reg, "prev", "lag", x),
	)

	assert.Equal(t, "(x INTEGER, rn BIGINT, prev INTEGER)", w.Type().String())
	assert.Len(t, w.Children(), 4)

	bad := NewWindowCall(reg, "rn", "row_number", x)
	assert.Nil(t, bad.Window)
}

func TestWith_ChildrenOrder(t *testing.T) {
	body := NewScan(Var(0, 0, types.Bag(types.Integer())), "x")
	e := Lit(datum.Bag(datum.Int(1)))

	w := NewWith(body, B("e", e))

	assert.Equal(t, []Operator{e, body}, w.Children())
	assert.Equal(t, body.Type().String(), w.Type().String())
}

func TestCollation_Defaults(t *testing.T) {
	assert.Equal(t, "ASC NULLS FIRST", C(lit(1), Asc).String())
	assert.Equal(t, "DESC NULLS LAST", C(lit(1), Desc).String())
}

func TestCount_And_Walk(t *testing.T) {
	scan := NewScan(Table("t", types.Bag(types.Integer())), "x")
	root := Select(NewFilter(scan, True()), Var(0, 0, types.Integer()))

	assert.Equal(t, 6, Count(root))

	var labels []string
	Walk(root, func(op Operator) bool {
		labels = append(labels, Label(op))
		_, isFilter := op.(*RelFilter)
		return !isFilter
	})
	assert.Equal(t, []string{"Select", "Filter", "Var 0.0"}, labels)
}

func TestValidate(t *testing.T) {
	scan := NewScan(Table("t", types.Bag(types.Integer())), "x")
	ok := NewQuery(Select(scan, Var(0, 0, types.Integer())))
	require.NoError(t, ok.Validate())

	shared := True()
	dup := NewQuery(Select(NewFilter(scan, shared), shared))
	assert.ErrorContains(t, dup.Validate(), "more than once")

	var nilRex *RexLit
	withNil := NewQuery(Select(scan, &RexCoalesce{Args: []Rex{nilRex}}))
	assert.ErrorContains(t, withNil.Validate(), "nil")

	assert.Error(t, (&Plan{}).Validate())
	assert.ErrorContains(t, NewEffect("insert", "", Lit(datum.Bag())).Validate(), "no target")
}

func TestExplain(t *testing.T) {
	reg := fn.Builtins()
	scan := NewScan(Table("t", types.Bag(types.Integer())), "x")
	x := Var(0, 0, types.Integer())
	root := Select(NewFilter(scan, NewCall(reg, "gt", x, lit(1))), x)

	want := "Select : BAG(INTEGER)\n" +
		"  Filter : (x INTEGER)\n" +
		"    Scan as=x : (x INTEGER)\n" +
		"      Table t : BAG(INTEGER)\n" +
		"    Call gt(DYNAMIC, DYNAMIC) -> BOOL : BOOL\n" +
		"      Var 0.0 : INTEGER\n" +
		"      Lit 1 : INTEGER\n" +
		"  Var 0.0 : INTEGER\n"
	assert.Equal(t, want, Explain(root))

	annotated := ExplainFunc(root, func(op Operator) string {
		if _, ok := op.(*RelScan); ok {
			return "scan"
		}
		return ""
	})
	assert.Contains(t, annotated, "Scan as=x : (x INTEGER) [scan]\n")

	p := NewEffect("insert", "out", root)
	assert.Contains(t, ExplainPlan(p, nil), "Effect insert into out\n  Select")
}
