package fn

import (
	"math"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

func call(t *testing.T, r *Registry, name string, args ...datum.Datum) (datum.Datum, error) {
	t.Helper()
	ts := make([]types.PType, len(args))
	for i, a := range args {
		ts[i] = a.Type()
	}
	f, ok := r.Resolve(name, ts)
	require.True(t, ok, "no overload for %s%v", name, ts)
	return f.Call(args)
}

func TestResolve_PicksNarrowestNumericOverload(t *testing.T) {
	r := Builtins()

	f, ok := r.Resolve("plus", []types.PType{types.Integer(), types.BigInt()})
	require.True(t, ok)
	assert.Equal(t, types.KindBigInt, f.Returns.Kind())

	f, ok = r.Resolve("PLUS", []types.PType{types.Integer(), types.Decimal(10, 2)})
	require.True(t, ok)
	assert.Equal(t, types.KindDecimal, f.Returns.Kind())
}

func TestResolve_RejectsNonNumeric(t *testing.T) {
	r := Builtins()

	_, ok := r.Resolve("plus", []types.PType{types.String(), types.Integer()})
	assert.False(t, ok)
}

func TestResolve_DynamicArgumentFallsBackToCandidates(t *testing.T) {
	r := Builtins()
	args := []types.PType{types.Dynamic(), types.Integer()}

	_, ok := r.Resolve("plus", args)
	assert.False(t, ok)

	candidates := r.Candidates("plus", args)
	require.NotEmpty(t, candidates)
	assert.Equal(t, types.KindInteger, candidates[0].Params[1].Kind())

	f, ok := Dispatch(candidates, []datum.Datum{datum.BigInt(2), datum.Int(3)})
	require.True(t, ok)
	assert.Equal(t, types.KindBigInt, f.Returns.Kind())

	_, ok = Dispatch(candidates, []datum.Datum{datum.String("x"), datum.Int(3)})
	assert.False(t, ok)
}

func TestRegistry_FirstRegisteredWins(t *testing.T) {
	r := NewRegistry()
	first := &Function{Name: "f", Params: []types.PType{types.Dynamic()}, Returns: types.Bool()}
	second := &Function{Name: "f", Params: []types.PType{types.Dynamic()}, Returns: types.String()}
	r.Register(first, second)

	got, ok := r.Resolve("F", []types.PType{types.Integer()})
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Len(t, r.Functions("f"), 2)
}

func TestArith(t *testing.T) {
	r := Builtins()

	v, err := call(t, r, "plus", datum.Int(2), datum.BigInt(3))
	require.NoError(t, err)
	assert.Equal(t, types.KindBigInt, v.Kind())
	assert.Equal(t, int64(5), v.Int64())

	dec, _, err := apd.NewFromString("1.25")
	require.NoError(t, err)
	v, err = call(t, r, "times", datum.DecimalOf(dec), datum.Int(2))
	require.NoError(t, err)
	assert.Equal(t, "2.50", v.Decimal().Text('f'))

	v, err = call(t, r, "divide", datum.Int(7), datum.Int(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int64())
}

func TestArith_Errors(t *testing.T) {
	r := Builtins()

	_, err := call(t, r, "divide", datum.BigInt(1), datum.BigInt(0))
	var de *DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CodeDivideByZero, de.Code)

	_, err = call(t, r, "plus", datum.BigInt(math.MaxInt64), datum.BigInt(1))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CodeOverflow, de.Code)

	_, err = call(t, r, "times", datum.TinyInt(100), datum.TinyInt(2))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CodeOverflow, de.Code)

	_, err = Arith(OpAdd, datum.String("a"), datum.Int(1))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CodeTypeMismatch, de.Code)
}

func TestNullAndMissingPropagation(t *testing.T) {
	r := Builtins()

	v, err := call(t, r, "plus", datum.Null(types.Integer()), datum.Int(1))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, types.KindInteger, v.Kind())

	v, err = call(t, r, "eq", datum.Missing(), datum.Int(1))
	require.NoError(t, err)
	assert.True(t, v.IsMissing())
}

func TestThreeValuedLogic(t *testing.T) {
	r := Builtins()
	null := datum.Null(types.Bool())

	testCases := []struct {
		name string
		args []datum.Datum
		want string
	}{
		{"and", []datum.Datum{datum.Bool(false), null}, "FALSE"},
		{"and", []datum.Datum{datum.Bool(true), null}, "NULL"},
		{"or", []datum.Datum{datum.Bool(true), null}, "TRUE"},
		{"or", []datum.Datum{datum.Bool(false), null}, "NULL"},
		{"not", []datum.Datum{null}, "NULL"},
		{"not", []datum.Datum{datum.Bool(true)}, "FALSE"},
	}

	for _, tc := range testCases {
		v, err := call(t, r, tc.name, tc.args...)
		require.NoError(t, err)
		assert.Equal(t, tc.want, v.String(), "%s%v", tc.name, tc.args)
	}
}

func TestComparison(t *testing.T) {
	r := Builtins()

	v, err := call(t, r, "lt", datum.Int(1), datum.Double(1.5))
	require.NoError(t, err)
	assert.True(t, v.Boolean())

	_, err = call(t, r, "lt", datum.Int(1), datum.String("a"))
	assert.Error(t, err)

	v, err = call(t, r, "eq", datum.Int(1), datum.String("1"))
	require.NoError(t, err)
	assert.False(t, v.Boolean())

	v, err = call(t, r, "between", datum.Int(5), datum.Int(1), datum.Int(5))
	require.NoError(t, err)
	assert.True(t, v.Boolean())
}

func TestText(t *testing.T) {
	r := Builtins()

	v, err := call(t, r, "upper", datum.String("h\u00e9llo"))
	require.NoError(t, err)
	assert.Equal(t, "H\u00c9LLO", v.Text())

	v, err = call(t, r, "concat", datum.Symbol("a"), datum.Varchar("b", 3))
	require.NoError(t, err)
	assert.Equal(t, "ab", v.Text())

	v, err = call(t, r, "char_length", datum.String("h\u00e9llo"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int64())
}

func TestLike(t *testing.T) {
	r := Builtins()

	testCases := []struct {
		value, pattern string
		want           bool
	}{
		{"hello", "h%", true},
		{"hello", "h_llo", true},
		{"hello", "H%", false},
		{"a.c", "a.c", true},
		{"abc", "a.c", false},
	}
	for _, tc := range testCases {
		v, err := call(t, r, "like", datum.String(tc.value), datum.String(tc.pattern))
		require.NoError(t, err)
		assert.Equal(t, tc.want, v.Boolean(), "%q LIKE %q", tc.value, tc.pattern)
	}

	v, err := call(t, r, "like", datum.String("50%"), datum.String("50!%"), datum.String("!"))
	require.NoError(t, err)
	assert.True(t, v.Boolean())
}

func TestInCollection(t *testing.T) {
	r := Builtins()

	v, err := call(t, r, "in_collection", datum.Int(2), datum.Bag(datum.BigInt(1), datum.BigInt(2)))
	require.NoError(t, err)
	assert.True(t, v.Boolean())

	v, err = call(t, r, "in_collection", datum.Int(3), datum.List(datum.Int(1), datum.Null(types.Integer())))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestIsNull(t *testing.T) {
	r := Builtins()

	v, err := call(t, r, "is_null", datum.Missing())
	require.NoError(t, err)
	assert.True(t, v.Boolean())

	v, err = call(t, r, "is_missing", datum.Null(types.Integer()))
	require.NoError(t, err)
	assert.False(t, v.Boolean())
}
