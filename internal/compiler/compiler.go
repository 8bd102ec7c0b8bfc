package compiler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/plan"
)

// Mode selects the runtime error policy of a compiled statement.
type Mode = eval.Mode

const (
	ModeStrict     = eval.ModeStrict
	ModePermissive = eval.ModePermissive
)

// IDGenerator generates statement IDs.
// Implemented by UUIDv7Generator (production) and the testutil generators.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 statement IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Context carries the per-compilation settings.
type Context struct {
	// Listener receives compile errors. Nil means AbortListener.
	Listener ErrorListener
	// Path is the default catalog path for unqualified table names. It is
	// used when the executing session has no path of its own.
	Path []string
}

// Compiler lowers logical plans into executable statements.
//
// Strategies are tried in order for every operator; the first whose
// pattern matches is applied. There is no backtracking: if the chosen
// strategy fails, the operator fails.
//
// INVARIANTS:
//   - strategy order never changes after New
//   - a Compiler holds no per-compilation state, so one Compiler may
//     prepare any number of statements, including concurrently
type Compiler struct {
	strategies []Strategy
	functions  *fn.Registry
	ids        IDGenerator
	logger     *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithStrategies registers custom strategies ahead of the defaults, in the
// given order. Later WithStrategies calls go ahead of earlier ones.
func WithStrategies(strategies ...Strategy) Option {
	return func(c *Compiler) {
		c.strategies = append(append([]Strategy(nil), strategies...), c.strategies...)
	}
}

// ReplaceStrategies discards the registered strategies, defaults
// included, and uses strategies instead.
func ReplaceStrategies(strategies ...Strategy) Option {
	return func(c *Compiler) {
		c.strategies = append([]Strategy(nil), strategies...)
	}
}

// WithFunctions sets the registry used to tell unknown functions from
// type mismatches when reporting unresolved calls. Default: fn.Builtins().
func WithFunctions(r *fn.Registry) Option {
	return func(c *Compiler) { c.functions = r }
}

// WithIDGenerator sets the statement ID generator. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Compiler) { c.ids = g }
}

// WithLogger sets the logger for strategy selection. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// New creates a Compiler with the default strategies.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		strategies: DefaultStrategies(),
		functions:  fn.Builtins(),
		ids:        UUIDv7Generator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strategies returns the strategies in matching order.
func (c *Compiler) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

// compilation is the state of one Prepare call.
type compilation struct {
	*Compiler
	mode     Mode
	listener ErrorListener
	chosen   map[plan.Operator]string
	errs     []error // reported to a listener that let compilation continue
}

// Prepare compiles p into a Statement.
//
// Operators are compiled post-order: the operands of a node, in Children
// order, before the node itself. Every compile error goes to the context's
// listener. With the default AbortListener the first error is returned;
// with a listener that continues, Prepare still fails after visiting the
// whole plan, returning every reported error joined.
func (c *Compiler) Prepare(p *plan.Plan, mode Mode, ctx *Context) (*Statement, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	listener := ctx.Listener
	if listener == nil {
		listener = AbortListener{}
	}
	comp := &compilation{Compiler: c, mode: mode, listener: listener, chosen: make(map[plan.Operator]string)}

	if err := p.Validate(); err != nil {
		pe := perr(CodeInvalidPlan, nil, "%v", err)
		if lerr := listener.OnError(pe); lerr != nil {
			return nil, lerr
		}
		return nil, pe
	}

	root, err := comp.compile(p.Action.Root())
	if err != nil {
		return nil, err
	}
	if len(comp.errs) > 0 {
		return nil, fmt.Errorf("compilation failed with %d error(s): %w", len(comp.errs), errors.Join(comp.errs...))
	}

	s := &Statement{
		ID:     c.ids.Generate(),
		mode:   mode,
		plan:   p,
		root:   root.(eval.Expression),
		chosen: comp.chosen,
		path:   append([]string(nil), ctx.Path...),
		logger: c.logger,
	}
	c.logger.Debug("statement prepared", "id", s.ID, "mode", mode.String(), "operators", len(comp.chosen))
	return s, nil
}

func (c *compilation) compile(op plan.Operator) (any, error) {
	kids := op.Children()
	compiled := make([]any, len(kids))
	for i, k := range kids {
		v, err := c.compile(k)
		if err != nil {
			return nil, err
		}
		compiled[i] = v
	}

	m := &Match{Operator: op, Mode: c.mode, Functions: c.functions, children: compiled}
	for _, s := range c.strategies {
		if !s.Pattern.Matches(op) {
			continue
		}
		c.logger.Debug("strategy selected", "operator", plan.Label(op), "strategy", s.Name)
		v, err := s.Apply(m)
		if merr := m.Err(); merr != nil {
			err = merr
		}
		if err != nil {
			var pe *PError
			if !errors.As(err, &pe) {
				pe = perr(CodeStrategyFailed, op, "strategy %s: %v", s.Name, err)
			}
			return c.report(op, pe)
		}
		v, ok := normalize(op, v)
		if !ok {
			return c.report(op, perr(CodeStrategyFailed, op, "strategy %s returned %T", s.Name, v))
		}
		c.chosen[op] = s.Name
		if e, ok := v.(eval.Expression); ok && c.mode == ModePermissive {
			v = eval.Permissive(e)
		}
		return v, nil
	}
	return c.report(op, perr(CodeNoStrategy, op, "no physical strategy for %T", op))
}

// normalize checks that a strategy result has the right kind for op and
// applies the permissive wrapper to expressions.
func normalize(op plan.Operator, v any) (any, bool) {
	switch op.(type) {
	case plan.Rel:
		switch f := v.(type) {
		case eval.Factory:
			return f, f != nil
		case func() eval.Relation:
			return eval.Factory(f), f != nil
		}
		return v, false
	default:
		e, ok := v.(eval.Expression)
		return e, ok && e != nil
	}
}

// report hands pe to the listener. If the listener lets compilation go on,
// a placeholder that fails with pe stands in for the operator.
func (c *compilation) report(op plan.Operator, pe *PError) (any, error) {
	if err := c.listener.OnError(pe); err != nil {
		return nil, err
	}
	c.errs = append(c.errs, pe)
	fail := eval.ExprFunc(func(*eval.Env) (datum.Datum, error) { return datum.Datum{}, pe })
	if _, ok := op.(plan.Rel); ok {
		return eval.Factory(func() eval.Relation { return eval.NewIterate(fail) }), nil
	}
	return fail, nil
}
