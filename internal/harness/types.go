package harness

import "github.com/roach88/pql/internal/datum"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Mode is the compile mode the plan ran in.
	Mode string `json:"mode"`

	// Explain is the annotated plan, empty when compilation failed.
	Explain string `json:"explain,omitempty"`

	// Value is the materialized result of the first query execution.
	Value datum.Datum `json:"-"`

	// Rendered is Value in literal notation.
	Rendered string `json:"result,omitempty"`

	// IsEffect is set when the plan is an effect.
	IsEffect bool `json:"effect,omitempty"`

	// Rows is the number of rows an effect wrote.
	Rows int64 `json:"rows,omitempty"`

	// CompileErr and ExecuteErr hold the failure of the respective stage.
	CompileErr error `json:"-"`
	ExecuteErr error `json:"-"`

	// Strategies lists the strategy names chosen while compiling, in plan
	// order (pre-order), one entry per operator.
	Strategies []string `json:"strategies,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
