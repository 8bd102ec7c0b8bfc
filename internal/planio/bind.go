package planio

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

// binder builds plan operators from document nodes.
//
// scopes mirrors the row scopes the evaluator pushes: the last element is
// depth 0. Every relational operand that evaluates per row is bound with
// its input type pushed.
type binder struct {
	file    string
	withPos bool
	reg     *fn.Registry
	cat     catalog.Catalog
	tables  map[string]types.PType
	scopes  []types.RelType
}

func newBinder(file string, withPos bool, tables map[string]types.PType, opts []Option) *binder {
	b := &binder{file: file, withPos: withPos, reg: fn.Builtins(), tables: tables}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *binder) errorf(n *yaml.Node, field, format string, args ...any) error {
	e := &Error{File: b.file, Field: field, Message: fmt.Sprintf(format, args...)}
	if b.withPos && n != nil {
		e.Line, e.Column = n.Line, n.Column
	}
	return e
}

// push binds f with t as the innermost row scope.
func push[T any](b *binder, t types.RelType, f func() (T, error)) (T, error) {
	b.scopes = append(b.scopes, t)
	defer func() { b.scopes = b.scopes[:len(b.scopes)-1] }()
	return f()
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return resolve(n.Content[0])
	}
	return n
}

// opNode is an operator mapping split into its name, operand and attributes.
type opNode struct {
	node    *yaml.Node
	name    string
	operand *yaml.Node
	attrs   map[string]*yaml.Node
}

func (b *binder) split(n *yaml.Node, allowed map[string][]string) (*opNode, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode || len(n.Content) < 2 {
		return nil, b.errorf(n, "operator", "expected a mapping whose first key names an operator")
	}
	op := &opNode{node: n, name: n.Content[0].Value, operand: resolve(n.Content[1]), attrs: make(map[string]*yaml.Node)}
	known, ok := allowed[op.name]
	if !ok {
		return nil, b.errorf(n.Content[0], op.name, "unknown operator %q", op.name)
	}
	for i := 2; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if !contains(known, key) {
			return nil, b.errorf(n.Content[i], op.name, "unknown attribute %q (want one of %s)", key, strings.Join(known, ", "))
		}
		if _, dup := op.attrs[key]; dup {
			return nil, b.errorf(n.Content[i], op.name, "duplicate attribute %q", key)
		}
		op.attrs[key] = resolve(n.Content[i+1])
	}
	return op, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (op *opNode) attr(key string) *yaml.Node { return op.attrs[key] }

func (b *binder) require(op *opNode, key string) (*yaml.Node, error) {
	n := op.attr(key)
	if n == nil {
		return nil, b.errorf(op.node, op.name, "attribute %q is required", key)
	}
	return n, nil
}

func (b *binder) str(n *yaml.Node, field string) (string, error) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", b.errorf(n, field, "expected a string")
	}
	return n.Value, nil
}

func (b *binder) optStr(op *opNode, key, def string) (string, error) {
	n := op.attr(key)
	if n == nil {
		return def, nil
	}
	return b.str(n, op.name+"."+key)
}

func (b *binder) optBool(op *opNode, key string) (bool, error) {
	n := op.attr(key)
	if n == nil {
		return false, nil
	}
	var v bool
	if err := n.Decode(&v); err != nil {
		return false, b.errorf(n, op.name+"."+key, "expected true or false")
	}
	return v, nil
}

func (b *binder) seq(n *yaml.Node, field string) ([]*yaml.Node, error) {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil, b.errorf(n, field, "expected a list")
	}
	out := make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		out[i] = resolve(c)
	}
	return out, nil
}

// entry is one key/value pair of an ordered mapping.
type entry struct {
	key   *yaml.Node
	value *yaml.Node
}

func (b *binder) entries(n *yaml.Node, field string) ([]entry, error) {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, b.errorf(n, field, "expected a mapping")
	}
	out := make([]entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, entry{key: n.Content[i], value: resolve(n.Content[i+1])})
	}
	return out, nil
}

func (b *binder) rexes(n *yaml.Node, field string) ([]plan.Rex, error) {
	items, err := b.seq(n, field)
	if err != nil {
		return nil, err
	}
	out := make([]plan.Rex, len(items))
	for i, item := range items {
		if out[i], err = b.rex(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *binder) bindings(n *yaml.Node, field string) ([]plan.Binding, error) {
	es, err := b.entries(n, field)
	if err != nil {
		return nil, err
	}
	out := make([]plan.Binding, len(es))
	for i, e := range es {
		r, err := b.rex(e.value)
		if err != nil {
			return nil, err
		}
		out[i] = plan.B(e.key.Value, r)
	}
	return out, nil
}

func (b *binder) pair(op *opNode) (plan.Rel, plan.Rel, error) {
	items, err := b.seq(op.operand, op.name)
	if err != nil {
		return nil, nil, err
	}
	if len(items) != 2 {
		return nil, nil, b.errorf(op.operand, op.name, "expected two inputs, got %d", len(items))
	}
	left, err := b.rel(items[0])
	if err != nil {
		return nil, nil, err
	}
	right, err := b.rel(items[1])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

var relAttrs = map[string][]string{
	"scan":      {"as", "at"},
	"iterate":   {"as"},
	"unpivot":   {"as", "at"},
	"filter":    {"where"},
	"project":   {"fields"},
	"join":      {"on", "type"},
	"correlate": {"type"},
	"aggregate": {"groups", "measures"},
	"sort":      {"by"},
	"limit":     {"count"},
	"offset":    {"count"},
	"distinct":  {},
	"union":     {"all"},
	"intersect": {"all"},
	"except":    {"all"},
	"window":    {"partition", "order", "functions"},
	"with":      {"body"},
	"exclude":   {"paths"},
}

var joinTypes = map[string]plan.JoinType{
	"inner": plan.JoinInner,
	"left":  plan.JoinLeft,
	"right": plan.JoinRight,
	"full":  plan.JoinFull,
}

// rel binds a relational operator.
func (b *binder) rel(n *yaml.Node) (plan.Rel, error) {
	op, err := b.split(n, relAttrs)
	if err != nil {
		if _, isRex := rexAttrs[firstKey(n)]; isRex {
			return nil, b.errorf(resolve(n), firstKey(n), "expected a relation, got scalar operator %q", firstKey(n))
		}
		return nil, err
	}

	switch op.name {
	case "scan", "iterate", "unpivot":
		return b.source(op)

	case "filter":
		input, err := b.rel(op.operand)
		if err != nil {
			return nil, err
		}
		where, err := b.require(op, "where")
		if err != nil {
			return nil, err
		}
		pred, err := push(b, input.Type(), func() (plan.Rex, error) { return b.rex(where) })
		if err != nil {
			return nil, err
		}
		return plan.NewFilter(input, pred), nil

	case "project":
		input, err := b.rel(op.operand)
		if err != nil {
			return nil, err
		}
		fields, err := b.require(op, "fields")
		if err != nil {
			return nil, err
		}
		bs, err := push(b, input.Type(), func() ([]plan.Binding, error) { return b.bindings(fields, "project.fields") })
		if err != nil {
			return nil, err
		}
		return plan.NewProject(input, bs...), nil

	case "join":
		return b.join(op)

	case "correlate":
		return b.correlate(op)

	case "aggregate":
		return b.aggregate(op)

	case "sort":
		input, err := b.rel(op.operand)
		if err != nil {
			return nil, err
		}
		by, err := b.require(op, "by")
		if err != nil {
			return nil, err
		}
		cs, err := push(b, input.Type(), func() ([]plan.Collation, error) { return b.collations(by, "sort.by") })
		if err != nil {
			return nil, err
		}
		return plan.NewSort(input, cs...), nil

	case "limit", "offset":
		input, err := b.rel(op.operand)
		if err != nil {
			return nil, err
		}
		cn, err := b.require(op, "count")
		if err != nil {
			return nil, err
		}
		count, err := b.rex(cn)
		if err != nil {
			return nil, err
		}
		if op.name == "limit" {
			return plan.NewLimit(input, count), nil
		}
		return plan.NewOffset(input, count), nil

	case "distinct":
		input, err := b.rel(op.operand)
		if err != nil {
			return nil, err
		}
		return plan.NewDistinct(input), nil

	case "union", "intersect", "except":
		left, right, err := b.pair(op)
		if err != nil {
			return nil, err
		}
		all, err := b.optBool(op, "all")
		if err != nil {
			return nil, err
		}
		switch op.name {
		case "union":
			return plan.NewUnion(left, right, all), nil
		case "intersect":
			return plan.NewIntersect(left, right, all), nil
		}
		return plan.NewExcept(left, right, all), nil

	case "window":
		return b.window(op)

	case "with":
		elems, err := b.bindings(op.operand, "with")
		if err != nil {
			return nil, err
		}
		bodyNode, err := b.require(op, "body")
		if err != nil {
			return nil, err
		}
		fields := make([]types.Field, len(elems))
		for i, e := range elems {
			fields[i] = types.F(e.Name, e.Rex.Type())
		}
		body, err := push(b, types.NewRelType(false, fields...), func() (plan.Rel, error) { return b.rel(bodyNode) })
		if err != nil {
			return nil, err
		}
		return plan.NewWith(body, elems...), nil

	case "exclude":
		return b.exclude(op)
	}
	return nil, b.errorf(op.node, op.name, "unknown relational operator %q", op.name)
}

func firstKey(n *yaml.Node) string {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode || len(n.Content) == 0 {
		return ""
	}
	return n.Content[0].Value
}

func (b *binder) source(op *opNode) (plan.Rel, error) {
	expr, err := b.rex(op.operand)
	if err != nil {
		return nil, err
	}
	switch op.name {
	case "scan":
		as, err := b.optStr(op, "as", "_1")
		if err != nil {
			return nil, err
		}
		if op.attr("at") == nil {
			return plan.NewScan(expr, as), nil
		}
		at, err := b.optStr(op, "at", "")
		if err != nil {
			return nil, err
		}
		return plan.NewScanIndexed(expr, as, at), nil
	case "iterate":
		as, err := b.optStr(op, "as", "_1")
		if err != nil {
			return nil, err
		}
		return plan.NewIterate(expr, as), nil
	}
	as, err := b.optStr(op, "as", "_1")
	if err != nil {
		return nil, err
	}
	at, err := b.optStr(op, "at", "_2")
	if err != nil {
		return nil, err
	}
	return plan.NewUnpivot(expr, as, at), nil
}

func (b *binder) join(op *opNode) (plan.Rel, error) {
	left, right, err := b.pair(op)
	if err != nil {
		return nil, err
	}
	kindName, err := b.optStr(op, "type", "inner")
	if err != nil {
		return nil, err
	}
	kind, ok := joinTypes[strings.ToLower(kindName)]
	if !ok {
		return nil, b.errorf(op.attr("type"), op.name+".type", "unknown join type %q", kindName)
	}
	var cond plan.Rex
	if on := op.attr("on"); on != nil {
		row := left.Type().Concat(right.Type())
		if cond, err = push(b, row, func() (plan.Rex, error) { return b.rex(on) }); err != nil {
			return nil, err
		}
	}
	return plan.NewJoin(left, right, cond, kind), nil
}

// correlate binds the right input with the left row in scope.
func (b *binder) correlate(op *opNode) (plan.Rel, error) {
	items, err := b.seq(op.operand, op.name)
	if err != nil {
		return nil, err
	}
	if len(items) != 2 {
		return nil, b.errorf(op.operand, op.name, "expected two inputs, got %d", len(items))
	}
	left, err := b.rel(items[0])
	if err != nil {
		return nil, err
	}
	right, err := push(b, left.Type(), func() (plan.Rel, error) { return b.rel(items[1]) })
	if err != nil {
		return nil, err
	}
	kindName, err := b.optStr(op, "type", "inner")
	if err != nil {
		return nil, err
	}
	kind, ok := joinTypes[strings.ToLower(kindName)]
	if !ok {
		return nil, b.errorf(op.attr("type"), "correlate.type", "unknown join type %q", kindName)
	}
	return plan.NewCorrelate(left, right, kind), nil
}

func (b *binder) aggregate(op *opNode) (plan.Rel, error) {
	input, err := b.rel(op.operand)
	if err != nil {
		return nil, err
	}
	type parts struct {
		groups   []plan.Binding
		measures []plan.Measure
	}
	p, err := push(b, input.Type(), func() (parts, error) {
		var p parts
		if g := op.attr("groups"); g != nil {
			var err error
			if p.groups, err = b.bindings(g, "aggregate.groups"); err != nil {
				return p, err
			}
		}
		if m := op.attr("measures"); m != nil {
			es, err := b.entries(m, "aggregate.measures")
			if err != nil {
				return p, err
			}
			for _, e := range es {
				call, err := b.call(e.value, "aggregate.measures."+e.key.Value, true)
				if err != nil {
					return p, err
				}
				p.measures = append(p.measures, plan.NewMeasure(b.reg, e.key.Value, call.name, call.distinct, call.args...))
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return plan.NewAggregate(input, p.groups, p.measures), nil
}

// fnCall is the {fn, args, distinct} form shared by measures and window
// functions.
type fnCall struct {
	name     string
	args     []plan.Rex
	distinct bool
}

func (b *binder) call(n *yaml.Node, field string, allowDistinct bool) (fnCall, error) {
	es, err := b.entries(n, field)
	if err != nil {
		return fnCall{}, err
	}
	var c fnCall
	for _, e := range es {
		switch e.key.Value {
		case "fn":
			if c.name, err = b.str(e.value, field+".fn"); err != nil {
				return c, err
			}
		case "args":
			if c.args, err = b.rexes(e.value, field+".args"); err != nil {
				return c, err
			}
		case "distinct":
			if !allowDistinct {
				return c, b.errorf(e.key, field, "distinct is not allowed here")
			}
			if err := e.value.Decode(&c.distinct); err != nil {
				return c, b.errorf(e.value, field+".distinct", "expected true or false")
			}
		default:
			return c, b.errorf(e.key, field, "unknown attribute %q", e.key.Value)
		}
	}
	if c.name == "" {
		return c, b.errorf(n, field, "fn is required")
	}
	return c, nil
}

func (b *binder) collations(n *yaml.Node, field string) ([]plan.Collation, error) {
	items, err := b.seq(n, field)
	if err != nil {
		return nil, err
	}
	out := make([]plan.Collation, len(items))
	for i, item := range items {
		es, err := b.entries(item, field)
		if err != nil {
			return nil, err
		}
		var (
			expr     plan.Rex
			order    = plan.Asc
			nulls    string
			hasNulls bool
		)
		for _, e := range es {
			switch e.key.Value {
			case "expr":
				if expr, err = b.rex(e.value); err != nil {
					return nil, err
				}
			case "order":
				switch strings.ToLower(e.value.Value) {
				case "asc":
					order = plan.Asc
				case "desc":
					order = plan.Desc
				default:
					return nil, b.errorf(e.value, field+".order", "want asc or desc, got %q", e.value.Value)
				}
			case "nulls":
				nulls, hasNulls = strings.ToLower(e.value.Value), true
			default:
				return nil, b.errorf(e.key, field, "unknown attribute %q", e.key.Value)
			}
		}
		if expr == nil {
			return nil, b.errorf(item, field, "expr is required")
		}
		c := plan.C(expr, order)
		if hasNulls {
			switch nulls {
			case "first":
				c.Nulls = plan.NullsFirst
			case "last":
				c.Nulls = plan.NullsLast
			default:
				return nil, b.errorf(item, field+".nulls", "want first or last, got %q", nulls)
			}
		}
		out[i] = c
	}
	return out, nil
}

func (b *binder) window(op *opNode) (plan.Rel, error) {
	input, err := b.rel(op.operand)
	if err != nil {
		return nil, err
	}
	fnNode, err := b.require(op, "functions")
	if err != nil {
		return nil, err
	}
	type parts struct {
		partitions []plan.Rex
		order      []plan.Collation
		calls      []plan.WindowCall
	}
	p, err := push(b, input.Type(), func() (parts, error) {
		var p parts
		var err error
		if n := op.attr("partition"); n != nil {
			if p.partitions, err = b.rexes(n, "window.partition"); err != nil {
				return p, err
			}
		}
		if n := op.attr("order"); n != nil {
			if p.order, err = b.collations(n, "window.order"); err != nil {
				return p, err
			}
		}
		es, err := b.entries(fnNode, "window.functions")
		if err != nil {
			return p, err
		}
		for _, e := range es {
			c, err := b.call(e.value, "window.functions."+e.key.Value, false)
			if err != nil {
				return p, err
			}
			p.calls = append(p.calls, plan.NewWindowCall(b.reg, e.key.Value, c.name, c.args...))
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return plan.NewWindow(input, p.partitions, p.order, p.calls...), nil
}

func (b *binder) exclude(op *opNode) (plan.Rel, error) {
	input, err := b.rel(op.operand)
	if err != nil {
		return nil, err
	}
	pathsNode, err := b.require(op, "paths")
	if err != nil {
		return nil, err
	}
	items, err := b.seq(pathsNode, "exclude.paths")
	if err != nil {
		return nil, err
	}
	paths := make([]plan.ExcludePath, len(items))
	for i, item := range items {
		s, err := b.str(item, "exclude.paths")
		if err != nil {
			return nil, err
		}
		if paths[i], err = parseExcludePath(input.Type(), s); err != nil {
			return nil, b.errorf(item, "exclude.paths", "%v", err)
		}
	}
	return plan.NewExclude(input, paths...), nil
}

// parseExcludePath reads paths such as r.a, r."Key", r.items[0], r.* and
// r.items[*]. The first segment names a column of t.
func parseExcludePath(t types.RelType, s string) (plan.ExcludePath, error) {
	var p plan.ExcludePath
	end := strings.IndexAny(s, ".[")
	if end < 0 {
		end = len(s)
	}
	col := s[:end]
	p.Column = -1
	for i, f := range t.Fields() {
		if f.Name == col || (p.Column < 0 && strings.EqualFold(f.Name, col)) {
			p.Column = i
			if f.Name == col {
				break
			}
		}
	}
	if p.Column < 0 {
		return p, fmt.Errorf("unknown column %q in %q", col, s)
	}
	rest := s[end:]
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, ".*"):
			p.Steps = append(p.Steps, plan.ExcludeStep{Kind: plan.StepAllFields})
			rest = rest[2:]
		case strings.HasPrefix(rest, `."`):
			end := strings.IndexByte(rest[2:], '"')
			if end < 0 {
				return p, fmt.Errorf("unterminated quoted key in %q", s)
			}
			p.Steps = append(p.Steps, plan.ExcludeStep{Kind: plan.StepKey, Key: rest[2 : 2+end]})
			rest = rest[3+end:]
		case strings.HasPrefix(rest, "."):
			n := strings.IndexAny(rest[1:], ".[")
			if n < 0 {
				n = len(rest) - 1
			}
			if n == 0 {
				return p, fmt.Errorf("empty step in %q", s)
			}
			p.Steps = append(p.Steps, plan.ExcludeStep{Kind: plan.StepSymbol, Key: rest[1 : 1+n]})
			rest = rest[1+n:]
		case strings.HasPrefix(rest, "[*]"):
			p.Steps = append(p.Steps, plan.ExcludeStep{Kind: plan.StepAllElements})
			rest = rest[3:]
		case strings.HasPrefix(rest, "["):
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return p, fmt.Errorf("unterminated index in %q", s)
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return p, fmt.Errorf("invalid index %q in %q", rest[1:end], s)
			}
			p.Steps = append(p.Steps, plan.ExcludeStep{Kind: plan.StepIndex, Index: idx})
			rest = rest[end+1:]
		default:
			return p, fmt.Errorf("unexpected %q in %q", rest, s)
		}
	}
	return p, nil
}

var rexAttrs = map[string][]string{
	"lit":      {},
	"var":      {},
	"table":    {"type"},
	"field":    {"name"},
	"key":      {"name"},
	"index":    {"at"},
	"call":     {"args"},
	"case":     {"else"},
	"cast":     {"to"},
	"coalesce": {},
	"nullif":   {},
	"list":     {},
	"bag":      {},
	"sexp":     {},
	"struct":   {},
	"spread":   {},
	"select":   {"value"},
	"subquery": {"value", "coerce"},
	"pivot":    {"key", "value"},
	"error":    {},
}

// rex binds a scalar operator.
func (b *binder) rex(n *yaml.Node) (plan.Rex, error) {
	op, err := b.split(n, rexAttrs)
	if err != nil {
		if _, isRel := relAttrs[firstKey(n)]; isRel {
			return nil, b.errorf(resolve(n), firstKey(n), "expected a value, got relational operator %q", firstKey(n))
		}
		return nil, err
	}

	switch op.name {
	case "lit":
		v, err := b.literal(op.operand, "lit")
		if err != nil {
			return nil, err
		}
		return plan.Lit(v), nil

	case "var":
		name, err := b.str(op.operand, "var")
		if err != nil {
			return nil, err
		}
		return b.variable(op.operand, name)

	case "table":
		name, err := b.str(op.operand, "table")
		if err != nil {
			return nil, err
		}
		t, err := b.tableType(op, name)
		if err != nil {
			return nil, err
		}
		return plan.Table(name, t), nil

	case "field":
		root, err := b.rex(op.operand)
		if err != nil {
			return nil, err
		}
		nameNode, err := b.require(op, "name")
		if err != nil {
			return nil, err
		}
		name, err := b.str(nameNode, "field.name")
		if err != nil {
			return nil, err
		}
		return plan.PathSymbol(root, name), nil

	case "key", "index":
		root, err := b.rex(op.operand)
		if err != nil {
			return nil, err
		}
		attr := "name"
		if op.name == "index" {
			attr = "at"
		}
		kn, err := b.require(op, attr)
		if err != nil {
			return nil, err
		}
		k, err := b.rex(kn)
		if err != nil {
			return nil, err
		}
		if op.name == "key" {
			return plan.PathKey(root, k), nil
		}
		return plan.PathIndex(root, k), nil

	case "call":
		name, err := b.str(op.operand, "call")
		if err != nil {
			return nil, err
		}
		var args []plan.Rex
		if an := op.attr("args"); an != nil {
			if args, err = b.rexes(an, "call.args"); err != nil {
				return nil, err
			}
		}
		return plan.NewCall(b.reg, name, args...), nil

	case "case":
		items, err := b.seq(op.operand, "case")
		if err != nil {
			return nil, err
		}
		branches := make([]plan.Branch, len(items))
		for i, item := range items {
			es, err := b.entries(item, "case")
			if err != nil {
				return nil, err
			}
			for _, e := range es {
				r, err := b.rex(e.value)
				if err != nil {
					return nil, err
				}
				switch e.key.Value {
				case "when":
					branches[i].Condition = r
				case "then":
					branches[i].Result = r
				default:
					return nil, b.errorf(e.key, "case", "unknown attribute %q", e.key.Value)
				}
			}
			if branches[i].Condition == nil || branches[i].Result == nil {
				return nil, b.errorf(item, "case", "each branch needs when and then")
			}
		}
		var def plan.Rex
		if en := op.attr("else"); en != nil {
			if def, err = b.rex(en); err != nil {
				return nil, err
			}
		}
		return plan.Case(def, branches...), nil

	case "cast":
		operand, err := b.rex(op.operand)
		if err != nil {
			return nil, err
		}
		tn, err := b.require(op, "to")
		if err != nil {
			return nil, err
		}
		t, err := b.ptype(tn, "cast.to")
		if err != nil {
			return nil, err
		}
		return plan.Cast(operand, t), nil

	case "coalesce", "nullif", "list", "bag", "sexp", "spread":
		args, err := b.rexes(op.operand, op.name)
		if err != nil {
			return nil, err
		}
		switch op.name {
		case "coalesce":
			return plan.Coalesce(args...), nil
		case "nullif":
			if len(args) != 2 {
				return nil, b.errorf(op.operand, "nullif", "expected two arguments, got %d", len(args))
			}
			return plan.NullIf(args[0], args[1]), nil
		case "list":
			return plan.Collection(types.KindList, args...), nil
		case "bag":
			return plan.Collection(types.KindBag, args...), nil
		case "sexp":
			return plan.Collection(types.KindSexp, args...), nil
		}
		return plan.Spread(args...), nil

	case "struct":
		return b.structRex(op.operand)

	case "select", "subquery", "pivot":
		return b.query(op)

	case "error":
		msg, err := b.str(op.operand, "error")
		if err != nil {
			return nil, err
		}
		return plan.Error(msg), nil
	}
	return nil, b.errorf(op.node, op.name, "unknown scalar operator %q", op.name)
}

func (b *binder) ptype(n *yaml.Node, field string) (types.PType, error) {
	s, err := b.str(n, field)
	if err != nil {
		return types.PType{}, err
	}
	t, err := types.Parse(s)
	if err != nil {
		return types.PType{}, b.errorf(n, field, "%v", err)
	}
	return t, nil
}

// tableType is the declared type, else the catalog schema, else
// BAG(DYNAMIC).
func (b *binder) tableType(op *opNode, name string) (types.PType, error) {
	if tn := op.attr("type"); tn != nil {
		return b.ptype(tn, "table.type")
	}
	if t, ok := b.tables[name]; ok {
		return t, nil
	}
	if b.cat != nil {
		if t, ok := b.cat.Table(name); ok {
			return t.Schema(), nil
		}
	}
	return types.Bag(types.Dynamic()), nil
}

// variable resolves a dotted name: the first segment against the row
// scopes, innermost first, the rest as field accesses.
func (b *binder) variable(n *yaml.Node, name string) (plan.Rex, error) {
	segs := strings.Split(name, ".")
	for _, s := range segs {
		if s == "" {
			return nil, b.errorf(n, "var", "malformed name %q", name)
		}
	}
	var r plan.Rex
	for depth := 0; depth < len(b.scopes) && r == nil; depth++ {
		scope := b.scopes[len(b.scopes)-1-depth]
		if i, ok := lookupField(scope.Fields(), segs[0]); ok {
			r = plan.Var(depth, i, scope.Field(i).Type)
		}
	}
	if r == nil {
		return nil, b.errorf(n, "var", "unknown variable %q", segs[0])
	}
	for _, s := range segs[1:] {
		r = plan.PathSymbol(r, s)
	}
	return r, nil
}

// lookupField prefers an exact match and falls back to the first
// case-insensitive one.
func lookupField(fields []types.Field, name string) (int, bool) {
	folded := -1
	for i, f := range fields {
		if f.Name == name {
			return i, true
		}
		if folded < 0 && strings.EqualFold(f.Name, name) {
			folded = i
		}
	}
	return folded, folded >= 0
}

func (b *binder) structRex(n *yaml.Node) (plan.Rex, error) {
	switch {
	case n != nil && n.Kind == yaml.MappingNode:
		es, err := b.entries(n, "struct")
		if err != nil {
			return nil, err
		}
		fields := make([]plan.StructField, len(es))
		for i, e := range es {
			v, err := b.rex(e.value)
			if err != nil {
				return nil, err
			}
			fields[i] = plan.StructField{Key: plan.Lit(datum.String(e.key.Value)), Value: v}
		}
		return plan.Struct(fields...), nil
	case n != nil && n.Kind == yaml.SequenceNode:
		items, err := b.seq(n, "struct")
		if err != nil {
			return nil, err
		}
		fields := make([]plan.StructField, len(items))
		for i, item := range items {
			es, err := b.entries(item, "struct")
			if err != nil {
				return nil, err
			}
			for _, e := range es {
				r, err := b.rex(e.value)
				if err != nil {
					return nil, err
				}
				switch e.key.Value {
				case "key":
					fields[i].Key = r
				case "value":
					fields[i].Value = r
				default:
					return nil, b.errorf(e.key, "struct", "unknown attribute %q", e.key.Value)
				}
			}
			if fields[i].Key == nil || fields[i].Value == nil {
				return nil, b.errorf(item, "struct", "each field needs key and value")
			}
		}
		return plan.Struct(fields...), nil
	}
	return nil, b.errorf(n, "struct", "expected a mapping of fields or a list of key/value pairs")
}

func (b *binder) query(op *opNode) (plan.Rex, error) {
	input, err := b.rel(op.operand)
	if err != nil {
		return nil, err
	}
	row := input.Type()
	if op.name == "pivot" {
		kn, err := b.require(op, "key")
		if err != nil {
			return nil, err
		}
		vn, err := b.require(op, "value")
		if err != nil {
			return nil, err
		}
		kv, err := push(b, row, func() ([2]plan.Rex, error) {
			k, err := b.rex(kn)
			if err != nil {
				return [2]plan.Rex{}, err
			}
			v, err := b.rex(vn)
			return [2]plan.Rex{k, v}, err
		})
		if err != nil {
			return nil, err
		}
		return plan.Pivot(input, kv[0], kv[1]), nil
	}

	var ctor plan.Rex
	if vn := op.attr("value"); vn != nil {
		if ctor, err = push(b, row, func() (plan.Rex, error) { return b.rex(vn) }); err != nil {
			return nil, err
		}
	} else {
		ctor = rowValue(row, op.name == "select")
	}
	if op.name == "select" {
		return plan.Select(input, ctor), nil
	}
	coerce, err := b.optStr(op, "coerce", "scalar")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(coerce) {
	case "scalar":
		return plan.Subquery(input, ctor, plan.CoerceScalar), nil
	case "row":
		return plan.Subquery(input, ctor, plan.CoerceRow), nil
	}
	return nil, b.errorf(op.attr("coerce"), "subquery.coerce", "want scalar or row, got %q", coerce)
}

// rowValue is the default constructor: a struct of all columns, or the
// single column itself when unwrap is set.
func rowValue(row types.RelType, unwrap bool) plan.Rex {
	fs := row.Fields()
	if unwrap && len(fs) == 1 {
		return plan.Var(0, 0, fs[0].Type)
	}
	fields := make([]plan.StructField, len(fs))
	for i, f := range fs {
		fields[i] = plan.StructField{Key: plan.Lit(datum.String(f.Name)), Value: plan.Var(0, i, f.Type)}
	}
	return plan.Struct(fields...)
}
