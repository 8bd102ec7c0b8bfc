package plan

import (
	"fmt"
	"reflect"
)

// Plan is the unit handed to the compiler: a single top-level action over
// an operator tree.
type Plan struct {
	Action Action
}

// Action is the top-level intent of a plan.
//
// This is a sealed interface - only Query and Effect implement it.
type Action interface {
	// Root returns the operator that produces the action's value.
	Root() Rex
	action()
}

// Query evaluates Root and returns its value.
type Query struct {
	Expr Rex
}

func (q *Query) Root() Rex { return q.Expr }
func (*Query) action() {}

// Effect evaluates Source and writes its rows into the catalog table named
// Target. Name identifies the kind of effect (e.g. "insert").
type Effect struct {
	Name   string
	Target string
	Source Rex
}

func (e *Effect) Root() Rex { return e.Source }
func (*Effect) action() {}

// NewQuery returns a query plan.
func NewQuery(root Rex) *Plan {
	return &Plan{Action: &Query{Expr: root}}
}

// NewEffect returns an effect plan.
func NewEffect(name, target string, source Rex) *Plan {
	return &Plan{Action: &Effect{Name: name, Target: target, Source: source}}
}

// Validate checks the structural preconditions the compiler relies on: an
// action is present, no operand is nil, and no operator instance appears
// twice in the tree.
func (p *Plan) Validate() error {
	if p == nil || p.Action == nil {
		return fmt.Errorf("plan has no action")
	}
	root := p.Action.Root()
	if root == nil || isNilOperator(root) {
		return fmt.Errorf("plan action has no root")
	}
	if e, ok := p.Action.(*Effect); ok && e.Target == "" {
		return fmt.Errorf("effect %q has no target", e.Name)
	}
	seen := make(map[Operator]bool)
	var err error
	Walk(root, func(op Operator) bool {
		if err != nil {
			return false
		}
		if seen[op] {
			err = fmt.Errorf("operator %s appears more than once", Label(op))
			return false
		}
		seen[op] = true
		for i, c := range op.Children() {
			if c == nil || isNilOperator(c) {
				err = fmt.Errorf("operator %s: operand %d is nil", Label(op), i)
				return false
			}
		}
		return true
	})
	return err
}

// isNilOperator catches typed nil pointers wrapped in the interface.
func isNilOperator(op Operator) bool {
	v := reflect.ValueOf(op)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
