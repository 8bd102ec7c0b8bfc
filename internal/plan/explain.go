package plan

import (
	"fmt"
	"strings"
)

// Label returns a one-line description of op without its children, e.g.
// "Scan as=x" or "Call plus".
//
// The switch is exhaustive over the operator variants; an unknown variant
// is rendered with its Go type so a missing case is visible in output.
func Label(op Operator) string {
	switch o := op.(type) {
	case *RelScan:
		return "Scan as=" + o.As
	case *RelScanIndexed:
		return fmt.Sprintf("ScanIndexed as=%s at=%s", o.As, o.At)
	case *RelIterate:
		return "Iterate as=" + o.As
	case *RelUnpivot:
		return fmt.Sprintf("Unpivot as=%s at=%s", o.As, o.At)
	case *RelFilter:
		return "Filter"
	case *RelProject:
		return "Project " + bindingNames(o.Projections)
	case *RelJoin:
		return "Join " + o.JoinType.String()
	case *RelCorrelate:
		return "Correlate " + o.JoinType.String()
	case *RelAggregate:
		var ms []string
		for _, m := range o.Measures {
			s := m.As + "=" + m.Function
			if m.Distinct {
				s += " DISTINCT"
			}
			ms = append(ms, s)
		}
		return fmt.Sprintf("Aggregate groups=%s measures=[%s]", bindingNames(o.Groups), strings.Join(ms, ", "))
	case *RelSort:
		cs := make([]string, len(o.Collations))
		for i, c := range o.Collations {
			cs[i] = c.String()
		}
		return "Sort [" + strings.Join(cs, ", ") + "]"
	case *RelLimit:
		return "Limit"
	case *RelOffset:
		return "Offset"
	case *RelDistinct:
		return "Distinct"
	case *RelUnion:
		return setOpLabel("Union", o.All)
	case *RelIntersect:
		return setOpLabel("Intersect", o.All)
	case *RelExcept:
		return setOpLabel("Except", o.All)
	case *RelWindow:
		fs := make([]string, len(o.Functions))
		for i, f := range o.Functions {
			fs[i] = f.As + "=" + f.Function
		}
		return fmt.Sprintf("Window partitions=%d [%s]", len(o.Partitions), strings.Join(fs, ", "))
	case *RelWith:
		return "With " + bindingNames(o.Elements)
	case *RelExclude:
		return fmt.Sprintf("Exclude paths=%d", len(o.Paths))
	case *RexLit:
		return "Lit " + o.Value.String()
	case *RexVar:
		return fmt.Sprintf("Var %d.%d", o.Depth, o.Offset)
	case *RexTable:
		return "Table " + o.Name
	case *RexPathIndex:
		return "PathIndex"
	case *RexPathKey:
		return "PathKey"
	case *RexPathSymbol:
		return "PathSymbol " + o.Symbol
	case *RexCall:
		switch {
		case o.Fn != nil:
			return "Call " + o.Fn.Signature()
		case len(o.Candidates) > 0:
			return fmt.Sprintf("Call %s dynamic(%d)", o.Name, len(o.Candidates))
		default:
			return "Call " + o.Name + " unresolved"
		}
	case *RexCase:
		return fmt.Sprintf("Case branches=%d", len(o.Branches))
	case *RexCast:
		return "Cast " + o.Target.String()
	case *RexCoalesce:
		return "Coalesce"
	case *RexNullIf:
		return "NullIf"
	case *RexCollection:
		return "Collection " + o.typ.Kind().String()
	case *RexStruct:
		return "Struct"
	case *RexSpread:
		return "Spread"
	case *RexSelect:
		return "Select"
	case *RexSubquery:
		return "Subquery " + o.Coercion.String()
	case *RexPivot:
		return "Pivot"
	case *RexError:
		return fmt.Sprintf("Error %q", o.Message)
	default:
		return fmt.Sprintf("%T", op)
	}
}

func setOpLabel(name string, all bool) string {
	if all {
		return name + " ALL"
	}
	return name
}

func bindingNames(bs []Binding) string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// typeOf renders the static type of op.
func typeOf(op Operator) string {
	switch o := op.(type) {
	case Rel:
		return o.Type().String()
	case Rex:
		return o.Type().String()
	}
	return "?"
}

// Explain renders the tree rooted at op, one operator per line, children
// indented by two spaces:
//
//	Filter : (x INTEGER)
//	  Scan as=x : (x INTEGER)
//	    Table t : BAG(INTEGER)
//	  Call gt(INTEGER, INTEGER) : BOOL
//	    ...
func Explain(op Operator) string {
	return ExplainFunc(op, nil)
}

// ExplainFunc is Explain with a per-operator annotation. When annotate
// returns a non-empty string it is appended to the line in brackets.
func ExplainFunc(op Operator, annotate func(Operator) string) string {
	var b strings.Builder
	explain(&b, op, 0, annotate)
	return b.String()
}

func explain(b *strings.Builder, op Operator, depth int, annotate func(Operator) string) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(Label(op))
	b.WriteString(" : ")
	b.WriteString(typeOf(op))
	if annotate != nil {
		if a := annotate(op); a != "" {
			b.WriteString(" [")
			b.WriteString(a)
			b.WriteString("]")
		}
	}
	b.WriteByte('\n')
	for _, c := range op.Children() {
		explain(b, c, depth+1, annotate)
	}
}

// ExplainPlan renders a plan with its action on the first line.
func ExplainPlan(p *Plan, annotate func(Operator) string) string {
	var head string
	switch a := p.Action.(type) {
	case *Query:
		head = "Query"
	case *Effect:
		head = fmt.Sprintf("Effect %s into %s", a.Name, a.Target)
	}
	var b strings.Builder
	b.WriteString(head)
	b.WriteByte('\n')
	explain(&b, p.Action.Root(), 1, annotate)
	return b.String()
}
