package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a plan test: fixture tables, a plan document to run
// against them and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Plan is the path of the plan document (.yaml, .yml or .cue).
	// Relative paths are resolved against the scenario file.
	Plan string `yaml:"plan"`

	// Mode overrides the mode of the plan document when set.
	Mode string `yaml:"mode,omitempty"`

	// Runs is how many times a query is executed and compared.
	// Zero means 2. Effects always run once.
	Runs int `yaml:"runs,omitempty"`

	// Tables maps table names to their initial values.
	Tables map[string]yaml.Node `yaml:"tables,omitempty"`

	// Assertions validate the outcome.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Value is the expected value (result_equals, table_equals).
	Value yaml.Node `yaml:"value,omitempty"`

	// Table names the table to read (table_equals).
	Table string `yaml:"table,omitempty"`

	// Count is the expected element or row count (result_count, rows_written).
	Count int `yaml:"count,omitempty"`

	// Code is the expected compile error code (compile_error).
	Code string `yaml:"code,omitempty"`

	// Message is a substring of the expected execution error (execute_error).
	Message string `yaml:"message,omitempty"`

	// Strategy is the strategy name to look for (strategy_used).
	Strategy string `yaml:"strategy,omitempty"`
}

// Assertion type constants.
const (
	AssertResultEquals = "result_equals"
	AssertResultCount  = "result_count"
	AssertTableEquals  = "table_equals"
	AssertRowsWritten  = "rows_written"
	AssertCompileError = "compile_error"
	AssertExecuteError = "execute_error"
	AssertStrategyUsed = "strategy_used"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the plan path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Plan != "" && !filepath.IsAbs(scenario.Plan) && basePath != "" {
		scenario.Plan = filepath.Join(basePath, scenario.Plan)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if _, err := os.Stat(scenario.Plan); os.IsNotExist(err) {
		return nil, &PlanNotFoundError{Scenario: scenario.Name, PlanPath: scenario.Plan}
	}

	return &scenario, nil
}

// PlanNotFoundError is returned when a scenario references a plan file
// that doesn't exist.
type PlanNotFoundError struct {
	Scenario string
	PlanPath string
}

// Error implements the error interface.
func (e *PlanNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references plan file %q which does not exist", e.Scenario, e.PlanPath)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Plan == "" {
		return fmt.Errorf("plan is required")
	}
	if s.Runs < 0 {
		return fmt.Errorf("runs must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertResultEquals:
		if a.Value.Kind == 0 {
			return fmt.Errorf("assertions[%d]: value is required for result_equals", index)
		}
	case AssertResultCount, AssertRowsWritten:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertTableEquals:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for table_equals", index)
		}
		if a.Value.Kind == 0 {
			return fmt.Errorf("assertions[%d]: value is required for table_equals", index)
		}
	case AssertCompileError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for compile_error", index)
		}
	case AssertExecuteError:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for execute_error", index)
		}
	case AssertStrategyUsed:
		if a.Strategy == "" {
			return fmt.Errorf("assertions[%d]: strategy is required for strategy_used", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
