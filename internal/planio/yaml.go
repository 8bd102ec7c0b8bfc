package planio

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pql/internal/plan"
)

// header is the top level of a document.
type header struct {
	Name   string            `yaml:"name"`
	Mode   string            `yaml:"mode"`
	Path   []string          `yaml:"path"`
	Tables map[string]string `yaml:"tables"`
	Query  yaml.Node         `yaml:"query"`
	Effect *effectHeader     `yaml:"effect"`
}

type effectHeader struct {
	Name   string    `yaml:"name"`
	Target string    `yaml:"target"`
	Source yaml.Node `yaml:"source"`
}

// ParseYAML reads a YAML document. file is used in error messages only.
func ParseYAML(data []byte, file string, opts ...Option) (*Document, error) {
	return parse(data, file, true, opts)
}

// parse decodes YAML (or JSON, which YAML accepts). withPos is false for
// JSON exported from CUE, whose positions mean nothing to the author.
func parse(data []byte, file string, withPos bool, opts []Option) (*Document, error) {
	var h header
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{File: file, Field: "document", Message: "empty document"}
		}
		return nil, &Error{File: file, Field: "document", Message: err.Error()}
	}

	mode, err := ParseMode(h.Mode)
	if err != nil {
		return nil, &Error{File: file, Field: "mode", Message: err.Error()}
	}
	tables, err := declaredTables(file, h.Tables)
	if err != nil {
		return nil, err
	}

	b := newBinder(file, withPos, tables, opts)
	doc := &Document{File: file, Name: h.Name, Mode: mode, Path: h.Path}

	hasQuery := !h.Query.IsZero()
	switch {
	case hasQuery && h.Effect != nil:
		return nil, &Error{File: file, Field: "document", Message: "query and effect are mutually exclusive"}
	case hasQuery:
		root, err := b.rex(&h.Query)
		if err != nil {
			return nil, err
		}
		doc.Plan = plan.NewQuery(root)
	case h.Effect != nil:
		e := h.Effect
		if e.Target == "" {
			return nil, &Error{File: file, Field: "effect.target", Message: "target is required"}
		}
		if e.Source.IsZero() {
			return nil, &Error{File: file, Field: "effect.source", Message: "source is required"}
		}
		src, err := b.rex(&e.Source)
		if err != nil {
			return nil, err
		}
		name := e.Name
		if name == "" {
			name = "insert"
		}
		doc.Plan = plan.NewEffect(name, e.Target, src)
	default:
		return nil, &Error{File: file, Field: "document", Message: "one of query or effect is required"}
	}
	return doc, nil
}
