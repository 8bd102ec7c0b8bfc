package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

// Pattern is a structural predicate over logical operators.
//
// Check tests the node itself. Children, when set, constrains the logical
// operands positionally: operand i must match Children[i]. Operands beyond
// len(Children) are unconstrained. Matching never backtracks and never
// looks at compiled results.
type Pattern struct {
	Name     string
	Check    func(plan.Operator) bool
	Children []Pattern
}

// Of returns a pattern matching operators of type T.
func Of[T plan.Operator]() Pattern {
	var zero T
	name := fmt.Sprintf("%T", zero)
	name = name[strings.LastIndex(name, ".")+1:]
	return Pattern{
		Name: name,
		Check: func(op plan.Operator) bool {
			_, ok := op.(T)
			return ok
		},
	}
}

// Any matches every operator.
func Any() Pattern {
	return Pattern{Name: "*", Check: func(plan.Operator) bool { return true }}
}

// Where returns p narrowed by pred.
func (p Pattern) Where(pred func(plan.Operator) bool) Pattern {
	check := p.Check
	p.Check = func(op plan.Operator) bool { return check(op) && pred(op) }
	return p
}

// With returns p with positional operand patterns.
func (p Pattern) With(children ...Pattern) Pattern {
	p.Children = append([]Pattern(nil), children...)
	return p
}

// Matches reports whether op satisfies the pattern.
func (p Pattern) Matches(op plan.Operator) bool {
	if op == nil || p.Check == nil || !p.Check(op) {
		return false
	}
	if len(p.Children) == 0 {
		return true
	}
	kids := op.Children()
	if len(kids) < len(p.Children) {
		return false
	}
	for i, c := range p.Children {
		if !c.Matches(kids[i]) {
			return false
		}
	}
	return true
}

func (p Pattern) String() string {
	if len(p.Children) == 0 {
		return p.Name
	}
	parts := make([]string, len(p.Children))
	for i, c := range p.Children {
		parts[i] = c.String()
	}
	return p.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Strategy lowers operators matching Pattern into physical operators.
//
// Apply must return an eval.Factory for Rel operators and an
// eval.Expression for Rex operators. Returning a *PError reports a compile
// error for the operator; any other error is reported as CodeStrategyFailed.
type Strategy struct {
	Name    string
	Pattern Pattern
	Apply   func(m *Match) (any, error)
}

// Match is the input of Strategy.Apply: the matched logical operator and
// its operands already compiled, in Children order.
//
// Rel and Rex record the first operand that is missing or of the wrong
// kind; the compiler reports it as the strategy's error once Apply returns.
type Match struct {
	Operator  plan.Operator
	Mode      Mode
	Functions *fn.Registry
	children  []any
	err       error
}

// Len returns the number of compiled operands.
func (m *Match) Len() int { return len(m.children) }

// Child returns compiled operand i as produced by its strategy.
func (m *Match) Child(i int) any { return m.children[i] }

// Err returns the first operand access that failed.
func (m *Match) Err() error { return m.err }

func (m *Match) fail(format string, args ...any) {
	if m.err == nil {
		m.err = fmt.Errorf(format, args...)
	}
}

// Rel returns compiled operand i, which must be a Rel. Otherwise it
// returns nil and records the error.
func (m *Match) Rel(i int) eval.Factory {
	if i < 0 || i >= len(m.children) {
		m.fail("operand %d out of range: %s has %d", i, plan.Label(m.Operator), len(m.children))
		return nil
	}
	f, ok := m.children[i].(eval.Factory)
	if !ok {
		m.fail("operand %d is %T, not a relation", i, m.children[i])
	}
	return f
}

// Rex returns compiled operand i, which must be a Rex. Otherwise it
// returns nil and records the error.
func (m *Match) Rex(i int) eval.Expression {
	if i < 0 || i >= len(m.children) {
		m.fail("operand %d out of range: %s has %d", i, plan.Label(m.Operator), len(m.children))
		return nil
	}
	e, ok := m.children[i].(eval.Expression)
	if !ok {
		m.fail("operand %d is %T, not an expression", i, m.children[i])
	}
	return e
}

// Rexes returns n compiled Rex operands starting at from.
func (m *Match) Rexes(from, n int) []eval.Expression {
	out := make([]eval.Expression, n)
	for i := range out {
		out[i] = m.Rex(from + i)
	}
	return out
}

// Operand returns logical operand i.
func (m *Match) Operand(i int) plan.Operator {
	return m.Operator.Children()[i]
}

// TypeOf returns the static type of logical operand i, which must be a Rex.
func (m *Match) TypeOf(i int) types.PType {
	if r, ok := m.Operand(i).(plan.Rex); ok {
		return r.Type()
	}
	return types.Dynamic()
}
