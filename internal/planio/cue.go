package planio

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// schema closes the top level of a CUE plan document. Operator trees are
// left open here and checked by the binder.
const schema = `
#Document: {
	name?: string
	mode?: "strict" | "permissive"
	path?: [...string]
	tables?: [string]: string
	query?: {...}
	effect?: {
		name?:  string
		target: string
		source: {...}
	}
}
`

// ParseCUE reads a CUE document. The document is unified with a closed
// schema, must be concrete, and is then bound like a YAML document.
//
// CUE lets documents share operator trees through references and hidden
// fields:
//
//	_rows: {scan: {table: "t"}, as: "r"}
//	query: {select: _rows, value: {var: "r"}}
func ParseCUE(src []byte, file string, opts ...Option) (*Document, error) {
	ctx := cuecontext.New()
	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Document"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(file))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(file, err)
	}
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(file, err)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(file, err)
	}
	return parse(data, file, false, opts)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(file string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{File: file, Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	e := &Error{File: file, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		pos := positions[0]
		if pos.Filename() != "" {
			e.File = pos.Filename()
		}
		e.Line, e.Column = pos.Line(), pos.Column()
	}
	return e
}
