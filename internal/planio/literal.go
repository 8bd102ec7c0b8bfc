package planio

import (
	"encoding/base64"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/types"
)

// literal reads a value. Scalars map by their YAML tag: integers to
// INTEGER (or BIGINT, or NUMERIC when they do not fit), decimals to
// DECIMAL, strings to STRING. A sequence is a LIST and a mapping a STRUCT,
// except for these one-key forms:
//
//	{bag: [...]}  {list: [...]}  {sexp: [...]}  {struct: {...}}
//	{missing: true}  {null: TYPE}  {blob: base64}
//	{type: TYPE, value: text}    text cast to TYPE
func (b *binder) literal(n *yaml.Node, field string) (datum.Datum, error) {
	n = resolve(n)
	if n == nil {
		return datum.Datum{}, b.errorf(nil, field, "missing value")
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return b.scalar(n, field)
	case yaml.SequenceNode:
		elems, err := b.literals(n, field)
		if err != nil {
			return datum.Datum{}, err
		}
		return datum.List(elems...), nil
	case yaml.MappingNode:
		return b.mappingLiteral(n, field)
	}
	return datum.Datum{}, b.errorf(n, field, "unsupported value")
}

func (b *binder) literals(n *yaml.Node, field string) ([]datum.Datum, error) {
	items, err := b.seq(n, field)
	if err != nil {
		return nil, err
	}
	out := make([]datum.Datum, len(items))
	for i, item := range items {
		if out[i], err = b.literal(item, field); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *binder) scalar(n *yaml.Node, field string) (datum.Datum, error) {
	switch n.ShortTag() {
	case "!!null":
		return datum.Null(types.Unknown()), nil
	case "!!bool":
		var v bool
		if err := n.Decode(&v); err != nil {
			return datum.Datum{}, b.errorf(n, field, "%v", err)
		}
		return datum.Bool(v), nil
	case "!!int":
		return b.integer(n, field)
	case "!!float":
		switch strings.ToLower(n.Value) {
		case ".inf", "+.inf":
			return datum.Double(math.Inf(1)), nil
		case "-.inf":
			return datum.Double(math.Inf(-1)), nil
		case ".nan":
			return datum.Double(math.NaN()), nil
		}
		dec, _, err := apd.NewFromString(n.Value)
		if err != nil {
			return datum.Datum{}, b.errorf(n, field, "invalid number %q", n.Value)
		}
		return datum.DecimalOf(dec), nil
	}
	return datum.String(n.Value), nil
}

func (b *binder) integer(n *yaml.Node, field string) (datum.Datum, error) {
	if v, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return datum.Int(int32(v)), nil
		}
		return datum.BigInt(v), nil
	}
	v, ok := new(big.Int).SetString(strings.ReplaceAll(n.Value, "_", ""), 0)
	if !ok {
		return datum.Datum{}, b.errorf(n, field, "invalid integer %q", n.Value)
	}
	return datum.Numeric(v), nil
}

func (b *binder) mappingLiteral(n *yaml.Node, field string) (datum.Datum, error) {
	es, err := b.entries(n, field)
	if err != nil {
		return datum.Datum{}, err
	}
	if len(es) == 1 {
		k, v := es[0].key.Value, es[0].value
		switch k {
		case "bag", "list", "sexp":
			elems, err := b.literals(v, field+"."+k)
			if err != nil {
				return datum.Datum{}, err
			}
			switch k {
			case "bag":
				return datum.Bag(elems...), nil
			case "sexp":
				return datum.Sexp(elems...), nil
			}
			return datum.List(elems...), nil
		case "struct":
			inner, err := b.entries(v, field+".struct")
			if err != nil {
				return datum.Datum{}, err
			}
			return b.structLiteral(inner, field)
		case "missing":
			return datum.Missing(), nil
		case "null":
			t, err := b.ptype(v, field+".null")
			if err != nil {
				return datum.Datum{}, err
			}
			return datum.Null(t), nil
		case "blob":
			s, err := b.str(v, field+".blob")
			if err != nil {
				return datum.Datum{}, err
			}
			raw, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return datum.Datum{}, b.errorf(v, field+".blob", "invalid base64: %v", err)
			}
			return datum.Blob(raw), nil
		}
	}
	if len(es) == 2 && es[0].key.Value == "type" && es[1].key.Value == "value" {
		t, err := b.ptype(es[0].value, field+".type")
		if err != nil {
			return datum.Datum{}, err
		}
		src, err := b.literal(es[1].value, field+".value")
		if err != nil {
			return datum.Datum{}, err
		}
		out, err := eval.CastValue(src, t)
		if err != nil {
			return datum.Datum{}, b.errorf(es[1].value, field+".value", "%v", err)
		}
		return out, nil
	}
	return b.structLiteral(es, field)
}

func (b *binder) structLiteral(es []entry, field string) (datum.Datum, error) {
	fields := make([]datum.Field, 0, len(es))
	for _, e := range es {
		v, err := b.literal(e.value, field+"."+e.key.Value)
		if err != nil {
			return datum.Datum{}, err
		}
		if v.IsMissing() {
			continue
		}
		fields = append(fields, datum.NewField(e.key.Value, v))
	}
	return datum.Struct(fields...), nil
}

// Literal reads a value from YAML using the literal forms of plan
// documents. It is used for fixture data outside plans.
func Literal(node *yaml.Node) (datum.Datum, error) {
	b := &binder{withPos: true}
	return b.literal(node, "value")
}

// ParseLiteral reads a value from YAML text.
func ParseLiteral(src string) (datum.Datum, error) {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(src), &n); err != nil {
		return datum.Datum{}, &Error{Field: "value", Message: err.Error()}
	}
	if len(n.Content) == 0 {
		return datum.Missing(), nil
	}
	return Literal(&n)
}
