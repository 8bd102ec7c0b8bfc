package plan

import (
	"github.com/roach88/pql/internal/types"
)

// Operator is a node of a logical plan.
//
// This is a sealed interface - only types in this package implement it. The
// set of variants is closed, so a type switch over Rel and Rex variants can
// be exhaustive and the compiler can fail loudly on a variant it has no
// strategy for.
//
// Operators are immutable once constructed. Every derived type is computed
// by the constructor and stored; nothing is computed lazily. Do not modify
// the exported operand fields after construction.
type Operator interface {
	// Children returns the operand operators in a fixed, documented order.
	// The compiler compiles children in this order and hands the compiled
	// results to strategies positionally.
	Children() []Operator
	operator() // Marker method - seals interface to this package
}

// Rel is a logical operator producing a sequence of rows.
type Rel interface {
	Operator
	Type() types.RelType
	rel()
}

// Rex is a logical operator producing a single value.
type Rex interface {
	Operator
	Type() types.PType
	rex()
}

// Binding names the value of a Rex. It is used by projections, group keys
// and WITH elements.
type Binding struct {
	Name string
	Rex  Rex
}

// B is a shorthand for Binding.
func B(name string, rex Rex) Binding {
	return Binding{Name: name, Rex: rex}
}

// Walk visits op and its descendants in pre-order. When visit returns false
// the children of that node are skipped.
func Walk(op Operator, visit func(Operator) bool) {
	if op == nil || !visit(op) {
		return
	}
	for _, c := range op.Children() {
		Walk(c, visit)
	}
}

// Count returns the number of operators in the tree rooted at op.
func Count(op Operator) int {
	n := 0
	Walk(op, func(Operator) bool {
		n++
		return true
	})
	return n
}

func rexes(rs ...[]Rex) []Operator {
	var out []Operator
	for _, r := range rs {
		for _, x := range r {
			out = append(out, x)
		}
	}
	return out
}

func commonType(ts []types.PType) types.PType {
	if len(ts) == 0 {
		return types.Dynamic()
	}
	t := ts[0]
	for _, o := range ts[1:] {
		if !o.Equal(t) {
			return types.Dynamic()
		}
	}
	return t
}

func typesOf(rs []Rex) []types.PType {
	out := make([]types.PType, len(rs))
	for i, r := range rs {
		out[i] = r.Type()
	}
	return out
}
