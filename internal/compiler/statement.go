package compiler

import (
	"fmt"
	"log/slog"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/plan"
)

// Result is the outcome of executing a Statement.
//
// This is a sealed interface - only QueryResult and EffectResult implement it.
type Result interface {
	result()
}

// QueryResult holds the value of a query. Collection values produced by a
// SELECT are lazy: the rows are computed when the value is iterated, and
// every iteration runs the query again. Use datum.Materialize to run it once.
type QueryResult struct {
	Value datum.Datum
}

func (QueryResult) result() {}

// EffectResult reports a write performed by an effect plan.
type EffectResult struct {
	Name   string
	Target string
	Rows   int64
}

func (EffectResult) result() {}

// Statement is a compiled plan.
//
// A Statement holds only immutable expressions and relation factories:
// every Execute builds fresh physical relations, so executions never share
// iteration state and a Statement may be executed any number of times.
type Statement struct {
	ID string

	mode   Mode
	plan   *plan.Plan
	root   eval.Expression
	chosen map[plan.Operator]string
	path   []string
	logger *slog.Logger
}

// Mode returns the runtime error policy the statement was compiled with.
func (s *Statement) Mode() Mode { return s.mode }

// Plan returns the logical plan the statement was compiled from.
func (s *Statement) Plan() *plan.Plan { return s.plan }

// Strategy returns the name of the strategy that compiled op.
func (s *Statement) Strategy(op plan.Operator) (string, bool) {
	name, ok := s.chosen[op]
	return name, ok
}

// Execute runs the statement against session.
func (s *Statement) Execute(session *catalog.Session) (Result, error) {
	if session == nil {
		return nil, fmt.Errorf("execute %s: nil session", s.ID)
	}
	if len(session.Path) == 0 && len(s.path) > 0 {
		scoped := *session
		scoped.Path = s.path
		session = &scoped
	}
	log := session.Log().With("statement", s.ID)
	log.Debug("executing statement", "mode", s.mode.String())

	v, err := s.root.Eval(eval.NewEnv(session))
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", s.ID, err)
	}

	effect, ok := s.plan.Action.(*plan.Effect)
	if !ok {
		return QueryResult{Value: v}, nil
	}
	return s.apply(session, effect, v)
}

func (s *Statement) apply(session *catalog.Session, effect *plan.Effect, v datum.Datum) (Result, error) {
	t, ok := session.Resolve(effect.Target)
	if !ok {
		return nil, fmt.Errorf("execute %s: %w: %s", s.ID, eval.ErrTableNotFound, effect.Target)
	}
	w, ok := t.(catalog.Writable)
	if !ok {
		return nil, fmt.Errorf("execute %s: table %s is read-only", s.ID, effect.Target)
	}
	var rows []datum.Datum
	if !v.IsAbsent() {
		if !v.Kind().IsCollection() {
			return nil, fmt.Errorf("execute %s: %s source must be a collection, got %s", s.ID, effect.Name, v.Kind())
		}
		var err error
		if rows, err = v.Elements(); err != nil {
			return nil, fmt.Errorf("execute %s: %w", s.ID, err)
		}
	}
	n, err := w.Insert(rows)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %s into %s: %w", s.ID, effect.Name, effect.Target, err)
	}
	session.Log().Debug("effect applied", "statement", s.ID, "effect", effect.Name, "target", effect.Target, "rows", n)
	return EffectResult{Name: effect.Name, Target: effect.Target, Rows: n}, nil
}

// Explain renders the logical plan annotated with the strategy chosen for
// every operator.
func (s *Statement) Explain() string {
	return plan.ExplainPlan(s.plan, func(op plan.Operator) string {
		return s.chosen[op]
	})
}
