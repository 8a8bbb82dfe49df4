package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   Input
		reasons []string
	}{
		{
			name:  "admits confirm",
			input: Input{Type: "confirm", SessionID: "A", Timeout: 5, MaxTimeout: 86400, Input: map[string]any{"title": "Deploy?"}},
		},
		{
			name:  "admits empty object",
			input: Input{Type: "form", SessionID: "A", Timeout: 300, Input: map[string]any{}},
		},
		{
			name:    "unknown type",
			input:   Input{Type: "slider", SessionID: "A", Timeout: 300, Input: map[string]any{}},
			reasons: []string{`unknown widget type "slider"`},
		},
		{
			name:  "admits array input",
			input: Input{Type: "table", SessionID: "A", Timeout: 300, Input: []any{"a"}},
		},
		{
			name:  "admits string input",
			input: Input{Type: "confirm", SessionID: "A", Timeout: 300, Input: "Deploy?"},
		},
		{
			name:    "timeout above cap",
			input:   Input{Type: "confirm", SessionID: "A", Timeout: 600, MaxTimeout: 300, Input: map[string]any{}},
			reasons: []string{"timeout 600 exceeds maximum of 300 seconds"},
		},
		{
			name:    "several reasons",
			input:   Input{Type: "slider", SessionID: "A", Timeout: 600, MaxTimeout: 300, Input: "text"},
			reasons: []string{"timeout 600 exceeds maximum of 300 seconds", `unknown widget type "slider"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasons, err := engine.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			if tt.reasons == nil {
				assert.Empty(t, reasons)
				return
			}
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

func TestCustomPolicyFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "admission.rego")
	module := `
package agentui.admission

import rego.v1

deny contains "input must be a JSON object" if {
	not is_object(input.input)
}

deny contains "title is required" if {
	is_object(input.input)
	not input.input.title
}
`
	require.NoError(t, os.WriteFile(path, []byte(module), 0o644))

	engine, err := NewEngineFromFile(ctx, path)
	require.NoError(t, err)

	reasons, err := engine.Evaluate(ctx, Input{Type: "confirm", Input: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"title is required"}, reasons)

	reasons, err = engine.Evaluate(ctx, Input{Type: "confirm", Input: []any{"ok"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"input must be a JSON object"}, reasons)

	reasons, err = engine.Evaluate(ctx, Input{Type: "confirm", Input: map[string]any{"title": "ok"}})
	require.NoError(t, err)
	assert.Empty(t, reasons)
}

func TestNewEngineRejectsBrokenModule(t *testing.T) {
	_, err := NewEngine(context.Background(), "package agentui.admission\n deny contains {")
	assert.Error(t, err)

	_, err = NewEngineFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
