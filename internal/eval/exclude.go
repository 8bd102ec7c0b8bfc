package eval

import (
	"strings"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

type exclude struct {
	lifecycle
	input Relation
	paths []plan.ExcludePath
}

// NewExclude removes the values reached by paths from every input row.
// A path with no steps removes the whole column, leaving MISSING. Steps
// that do not match the shape of the value are ignored.
func NewExclude(input Relation, paths ...plan.ExcludePath) Relation {
	return &exclude{input: input, paths: paths}
}

func (e *exclude) Open(env *Env) error {
	if err := e.begin(); err != nil {
		return err
	}
	return e.openChild(e.input, env)
}

func (e *exclude) Next() (Record, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	row, ok, err := e.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	out := append(Record(nil), row...)
	for _, p := range e.paths {
		if p.Column < 0 || p.Column >= len(out) {
			continue
		}
		if len(p.Steps) == 0 {
			out[p.Column] = datum.Missing()
			continue
		}
		if out[p.Column], err = excludePath(out[p.Column], p.Steps); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func (e *exclude) Close() error {
	_, err := e.finish()
	return err
}

func stepMatchesField(s plan.ExcludeStep, name string) bool {
	switch s.Kind {
	case plan.StepKey:
		return name == s.Key
	case plan.StepSymbol:
		return strings.EqualFold(name, s.Key)
	case plan.StepAllFields:
		return true
	}
	return false
}

// excludePath returns v without the values reached by steps. v is never
// modified; changed tuples and collections are rebuilt.
func excludePath(v datum.Datum, steps []plan.ExcludeStep) (datum.Datum, error) {
	if v.IsAbsent() {
		return v, nil
	}
	s, rest := steps[0], steps[1:]
	switch k := v.Kind(); {
	case k.IsTuple():
		fields := v.Fields()
		kept := fields[:0]
		for _, f := range fields {
			if stepMatchesField(s, f.Name) {
				if len(rest) == 0 {
					continue
				}
				nv, err := excludePath(f.Value, rest)
				if err != nil {
					return datum.Datum{}, err
				}
				f.Value = nv
			}
			kept = append(kept, f)
		}
		if k == types.KindRow {
			return datum.Row(kept...), nil
		}
		return datum.Struct(kept...), nil
	case k.IsCollection():
		if s.Kind != plan.StepAllElements && (s.Kind != plan.StepIndex || k == types.KindBag) {
			return v, nil
		}
		elems, err := v.Elements()
		if err != nil {
			return datum.Datum{}, err
		}
		kept := make([]datum.Datum, 0, len(elems))
		for i, el := range elems {
			if s.Kind == plan.StepAllElements || i == s.Index {
				if len(rest) == 0 {
					continue
				}
				if el, err = excludePath(el, rest); err != nil {
					return datum.Datum{}, err
				}
			}
			kept = append(kept, el)
		}
		return datum.Collection(v.Type(), kept), nil
	}
	return v, nil
}
