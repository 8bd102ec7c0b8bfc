package planio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/planio"
)

func kv(k, v int32) datum.Datum {
	return datum.Struct(datum.NewField("k", datum.Int(k)), datum.NewField("v", datum.Int(v)))
}

func memory(t *testing.T) *catalog.Memory {
	t.Helper()
	mem := catalog.NewMemory("db")
	_, err := mem.Put("t", datum.Bag(kv(1, 2), kv(1, 3), kv(2, 5)))
	require.NoError(t, err)
	return mem
}

func execute(t *testing.T, doc *planio.Document, mem *catalog.Memory) compiler.Result {
	t.Helper()
	stmt, err := compiler.New().Prepare(doc.Plan, doc.Mode, doc.Context(nil))
	require.NoError(t, err)
	res, err := stmt.Execute(catalog.NewSession(mem))
	require.NoError(t, err)
	return res
}

func query(t *testing.T, doc *planio.Document, mem *catalog.Memory) string {
	t.Helper()
	res := execute(t, doc, mem)
	q, ok := res.(compiler.QueryResult)
	require.True(t, ok)
	v, err := datum.Materialize(q.Value)
	require.NoError(t, err)
	return v.String()
}

func TestLoadFile_YAML(t *testing.T) {
	doc, err := planio.LoadFile("testdata/sum_by_key.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sum-by-key", doc.Name)
	assert.Equal(t, compiler.ModeStrict, doc.Mode)
	assert.Equal(t, "<<{'k': 1, 'total': 5}, {'k': 2, 'total': 5}>>", query(t, doc, memory(t)))
}

func TestLoadFile_CUEMatchesYAML(t *testing.T) {
	fromYAML, err := planio.LoadFile("testdata/sum_by_key.yaml")
	require.NoError(t, err)
	fromCUE, err := planio.LoadFile("testdata/sum_by_key.cue")
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Name, fromCUE.Name)
	assert.Equal(t, plan.ExplainPlan(fromYAML.Plan, nil), plan.ExplainPlan(fromCUE.Plan, nil))
	assert.Equal(t, query(t, fromYAML, memory(t)), query(t, fromCUE, memory(t)))
}

func TestLoadFile_Effect(t *testing.T) {
	mem := memory(t)
	out, err := mem.Put("out", datum.Bag())
	require.NoError(t, err)

	doc, err := planio.LoadFile("testdata/insert.yaml", planio.WithCatalog(mem))
	require.NoError(t, err)

	res := execute(t, doc, mem)
	assert.Equal(t, compiler.EffectResult{Name: "insert", Target: "out", Rows: 2}, res)
	v, err := out.Datum()
	require.NoError(t, err)
	assert.Equal(t, "<<3, 5>>", v.String())
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := planio.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestParseYAML_ResolvesOuterScopes(t *testing.T) {
	src := `
query:
  select:
    filter: {scan: {table: t}, as: a}
    where:
      call: eq
      args:
        - {var: a.k}
        - subquery:
            filter: {scan: {table: t}, as: b}
            where: {call: eq, args: [{var: b.v}, {var: a.v}]}
          value: {struct: {k: {var: b.k}}}
  value: {var: a.v}
`
	doc, err := planio.ParseYAML([]byte(src), "outer.yaml", planio.WithCatalog(memory(t)))
	require.NoError(t, err)

	var vars []*plan.RexVar
	plan.Walk(doc.Plan.Action.Root(), func(op plan.Operator) bool {
		if v, ok := op.(*plan.RexVar); ok {
			vars = append(vars, v)
		}
		return true
	})
	depths := make([]int, len(vars))
	for i, v := range vars {
		depths[i] = v.Depth
	}
	// a.k, b.v, a.v (one level further out), b.k, a.v
	assert.Equal(t, []int{0, 0, 1, 0, 0}, depths)
	assert.Equal(t, "<<2, 3, 5>>", query(t, doc, memory(t)))
}

func TestParseYAML_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		field   string
		message string
		line    int
	}{
		{
			name:    "unknown operator",
			src:     "query:\n  frobnicate: 1\n",
			field:   "frobnicate",
			message: "unknown operator",
			line:    2,
		},
		{
			name:    "relation where a value is expected",
			src:     "query:\n  scan: {lit: [1]}\n",
			field:   "scan",
			message: "expected a value",
			line:    2,
		},
		{
			name:    "value where a relation is expected",
			src:     "query:\n  select: {lit: 1}\n",
			field:   "lit",
			message: "expected a relation",
			line:    2,
		},
		{
			name:    "unknown variable",
			src:     "query:\n  select: {scan: {lit: [1]}, as: x}\n  value: {var: y}\n",
			field:   "var",
			message: "unknown variable",
			line:    3,
		},
		{
			name:    "unknown attribute",
			src:     "query:\n  select: {scan: {lit: [1]}, as: x, alias: y}\n",
			field:   "scan",
			message: "unknown attribute",
			line:    2,
		},
		{
			name:    "missing required attribute",
			src:     "query:\n  select:\n    filter: {scan: {lit: [1]}}\n",
			field:   "filter",
			message: "required",
			line:    3,
		},
		{
			name:    "bad type",
			src:     "query:\n  cast: {lit: 1}\n  to: WIDGET\n",
			field:   "cast.to",
			message: "unknown type",
			line:    3,
		},
		{
			name:    "bad join type",
			src:     "query:\n  select:\n    join: [{scan: {lit: [1]}}, {scan: {lit: [2]}}]\n    type: sideways\n",
			field:   "join.type",
			message: "unknown join type",
			line:    4,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := planio.ParseYAML([]byte(tc.src), "bad.yaml")
			var pe *planio.Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.field, pe.Field)
			assert.Contains(t, pe.Message, tc.message)
			assert.Equal(t, tc.line, pe.Line)
			assert.Equal(t, "bad.yaml", pe.File)
		})
	}
}

func TestParseYAML_DocumentErrors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		message string
	}{
		{"empty", "", "empty document"},
		{"unknown top-level field", "query: {lit: 1}\nextra: 1\n", "not found"},
		{"no action", "name: x\n", "one of query or effect"},
		{"both actions", "query: {lit: 1}\neffect: {target: t, source: {lit: 1}}\n", "mutually exclusive"},
		{"bad mode", "mode: lenient\nquery: {lit: 1}\n", "unknown mode"},
		{"effect without target", "effect: {source: {lit: 1}}\n", "target is required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := planio.ParseYAML([]byte(tc.src), "doc.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestParseCUE_SchemaViolation(t *testing.T) {
	src := `
mode: "lenient"
query: lit: 1
`
	_, err := planio.ParseCUE([]byte(src), "bad.cue")
	var pe *planio.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "cue", pe.Field)
	assert.Positive(t, pe.Line)
}

func TestParseCUE_ClosedTopLevel(t *testing.T) {
	_, err := planio.ParseCUE([]byte(`query: lit: 1
extra: 2
`), "bad.cue")
	var pe *planio.Error
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "extra")
}

func TestParseCUE_BindErrorsHaveNoLine(t *testing.T) {
	_, err := planio.ParseCUE([]byte(`query: frobnicate: 1`), "bad.cue")
	var pe *planio.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "frobnicate", pe.Field)
	assert.Zero(t, pe.Line)
	assert.Equal(t, "bad.cue: frobnicate: unknown operator \"frobnicate\"", pe.Error())
}

func TestParseYAML_Operators(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "project and sort",
			src: `
select:
  sort:
    project: {scan: {table: t}, as: r}
    fields: {key: {var: r.k}, val: {var: r.v}}
  by: [{expr: {var: val}, order: desc}]
value: {var: val}
`,
			want: "[5, 3, 2]",
		},
		{
			name: "limit and offset",
			src: `
select:
  limit:
    offset:
      sort: {scan: {lit: [3, 1, 2]}, as: x}
      by: [{expr: {var: x}}]
    count: {lit: 1}
  count: {lit: 1}
`,
			want: "[2]",
		},
		{
			name: "union all keeps duplicates",
			src: `
select:
  union: [{scan: {lit: [1, 2]}, as: x}, {scan: {lit: [2]}, as: y}]
  all: true
`,
			want: "<<1, 2, 2>>",
		},
		{
			name: "distinct",
			src: `
select:
  distinct: {scan: {lit: [1, 1, 2]}, as: x}
`,
			want: "[1, 2]",
		},
		{
			name: "left join pads with null",
			src: `
select:
  join: [{scan: {lit: {bag: [1, 2]}}, as: a}, {scan: {lit: {bag: [2]}}, as: b}]
  on: {call: eq, args: [{var: a}, {var: b}]}
  type: left
value: {list: [{var: a}, {var: b}]}
`,
			want: "<<[1, NULL], [2, 2]>>",
		},
		{
			name: "correlate sees the left row",
			src: `
select:
  correlate:
    - {scan: {table: t}, as: r}
    - {scan: {list: [{var: r.v}]}, as: v}
value: {var: v}
`,
			want: "<<2, 3, 5>>",
		},
		{
			name: "window row_number",
			src: `
select:
  window: {scan: {table: t}, as: r}
  partition: [{var: r.k}]
  order: [{expr: {var: r.v}, order: desc}]
  functions:
    rn: {fn: row_number}
value: {list: [{var: r.v}, {var: rn}]}
`,
			want: "<<[3, 1], [2, 2], [5, 1]>>",
		},
		{
			name: "with binds once",
			src: `
select:
  with:
    limit: {lit: 2}
  body:
    filter: {scan: {table: t}, as: r}
    where: {call: gt, args: [{var: r.v}, {var: limit}]}
value: {var: r.v}
`,
			want: "<<3, 5>>",
		},
		{
			name: "case and coalesce",
			src: `
select: {scan: {lit: [1, null]}, as: x}
value:
  case:
    - when: {call: is_null, args: [{var: x}]}
      then: {coalesce: [{var: x}, {lit: zero}]}
  else: {cast: {var: x}, to: STRING}
`,
			want: "['1', 'zero']",
		},
		{
			name: "pivot",
			src: `
pivot: {scan: {table: t}, as: r}
key: {cast: {var: r.v}, to: STRING}
value: {var: r.k}
`,
			want: "{'2': 1, '3': 1, '5': 2}",
		},
		{
			name: "unpivot",
			src: `
select:
  unpivot: {lit: {a: 1, b: 2}}
  as: v
  at: n
value: {var: n}
`,
			want: "<<'a', 'b'>>",
		},
		{
			name: "exclude",
			src: `
select:
  exclude: {scan: {table: t}, as: r}
  paths: [r.v]
`,
			want: "<<{'k': 1}, {'k': 1}, {'k': 2}>>",
		},
		{
			name: "scalar subquery",
			src: `
subquery:
  aggregate: {scan: {table: t}, as: r}
  measures: {n: {fn: count_star}}
`,
			want: "3",
		},
		{
			name: "paths",
			src: `
index:
  field: {lit: {items: [10, 20]}}
  name: items
at: {lit: 1}
`,
			want: "20",
		},
		{
			name: "struct with computed keys",
			src: `
struct:
  - key: {call: concat, args: [{lit: a}, {lit: b}]}
    value: {lit: 1}
`,
			want: "{'ab': 1}",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := "query:\n" + indent(tc.src)
			doc, err := planio.ParseYAML([]byte(src), "ops.yaml", planio.WithCatalog(memory(t)))
			require.NoError(t, err)
			assert.Equal(t, tc.want, query(t, doc, memory(t)))
		})
	}
}

func indent(s string) string {
	out := make([]byte, 0, len(s)*2)
	start := true
	for i := 0; i < len(s); i++ {
		if start && s[i] != '\n' {
			out = append(out, ' ', ' ')
		}
		out = append(out, s[i])
		start = s[i] == '\n'
	}
	return string(out)
}

func TestParseLiteral(t *testing.T) {
	testCases := []struct {
		src  string
		want string
	}{
		{"1", "1"},
		{"4294967296", "4294967296"},
		{"123456789012345678901234567890", "123456789012345678901234567890"},
		{"1.50", "1.50"},
		{"true", "TRUE"},
		{"null", "NULL"},
		{"hello", "'hello'"},
		{"'7'", "'7'"},
		{"[1, 2]", "[1, 2]"},
		{"{bag: [1]}", "<<1>>"},
		{"{sexp: [1]}", "(1)"},
		{"{a: 1, b: {missing: true}}", "{'a': 1}"},
		{"{struct: {bag: 1}}", "{'bag': 1}"},
		{"{missing: true}", "MISSING"},
		{"{blob: aGk=}", "{{aGk=}}"},
		{"{type: 'DECIMAL(5,2)', value: '1.5'}", "1.50"},
		{"{type: DATE, value: '2024-01-02'}", "DATE '2024-01-02'"},
	}

	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			v, err := planio.ParseLiteral(tc.src)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.String())
		})
	}
}

func TestParseLiteral_TypedNull(t *testing.T) {
	v, err := planio.ParseLiteral("{null: INTEGER}")
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, "INTEGER", v.Type().String())
}

func TestParseMode(t *testing.T) {
	m, err := planio.ParseMode("PERMISSIVE")
	require.NoError(t, err)
	assert.Equal(t, compiler.ModePermissive, m)

	m, err = planio.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, compiler.ModeStrict, m)

	_, err = planio.ParseMode("lenient")
	require.Error(t, err)
}
