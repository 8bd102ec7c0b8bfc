package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	kvRows = "{bag: [{k: 1, v: 2}, {k: 1, v: 3}, {k: 2, v: 5}]}\n"

	topTwoPlan = `name: top-two
query:
  select:
    limit:
      sort: {scan: {table: t}, as: r}
      by: [{expr: {var: r.v}, order: desc}]
    count: {lit: 2}
  value: {var: r.v}
`

	sumByKeyPlan = `name: sum-by-key
query:
  select:
    aggregate: {scan: {table: t}, as: r}
    groups:
      k: {var: r.k}
    measures:
      total: {fn: sum, args: [{var: r.v}]}
  value:
    struct:
      k: {var: k}
      total: {var: total}
`

	insertLargePlan = `name: insert-large
effect:
  target: out
  source:
    select:
      filter: {scan: {table: t}, as: r}
      where: {call: gt, args: [{var: r.v}, {lit: 2}]}
    value: {var: r.v}
`

	unknownFunctionPlan = `name: unknown-function
query:
  select: {scan: {table: t}, as: r}
  value: {call: frobnicate, args: [{var: r.v}]}
`

	twoUnknownFunctionsPlan = `query:
  select: {scan: {table: t}, as: r}
  value: {call: frobnicate, args: [{call: wibble, args: [{var: r.v}]}]}
`
)

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout and the
// command error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
