package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/datum"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "plan.yaml", "operator": "call frobnicate"}
	require.NoError(t, formatter.Error("E203", "unknown function frobnicate", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E203", resp.Error.Code)
	assert.Equal(t, "unknown function frobnicate", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("E001", "compilation failed", map[string]string{"file": "plan.yaml"}))
			assert.Contains(t, buf.String(), "Error [E001]: compilation failed")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Loading %s", "plan.yaml")

			assert.Empty(t, buf.String())
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "Loading plan.yaml")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func kv(k, v int32) datum.Datum {
	return datum.Struct(datum.NewField("k", datum.Int(k)), datum.NewField("v", datum.Int(v)))
}

func TestOutputFormatter_ValueTable(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "table", Writer: buf}

	v := datum.Bag(kv(1, 5), datum.Struct(datum.NewField("k", datum.Int(2)), datum.NewField("note", datum.String("x"))))
	require.NoError(t, formatter.Value(v))

	out := buf.String()
	assert.Contains(t, out, "| k | v | note |")
	assert.Contains(t, out, "'x'")
	assert.Contains(t, out, "(2 rows)")
}

func TestOutputFormatter_ValueFallsBackToText(t *testing.T) {
	tests := []struct {
		name  string
		value datum.Datum
		want  string
	}{
		{"scalar", datum.Int(7), "7\n"},
		{"scalars in bag", datum.Bag(datum.Int(1), datum.Int(2)), "<<1, 2>>\n"},
		{"empty bag", datum.Bag(), "<<>>\n"},
		{"mixed", datum.List(kv(1, 1), datum.Int(2)), "[{'k': 1, 'v': 1}, 2]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "table", Writer: buf}
			require.NoError(t, formatter.Value(tt.value))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_ValueJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, formatter.Value(datum.List(kv(1, 5))))

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Result []map[string]int `json:"result"`
			Type   string           `json:"type"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []map[string]int{{"k": 1, "v": 5}}, resp.Data.Result)
	assert.Contains(t, resp.Data.Type, "LIST")
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", base)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(base))
	assert.Equal(t, "2 scenario(s) failed", NewExitError(ExitFailure, "2 scenario(s) failed").Error())
}
