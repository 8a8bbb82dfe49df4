// Package policy evaluates admission rules for new interaction requests with OPA.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/rego"
)

// Query is the rule every admission module must define: a set of deny reasons.
const Query = "data.agentui.admission.deny"

// Input is what the rules see for one creation call.
type Input struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	Timeout    int    `json:"timeout"`
	MaxTimeout int    `json:"max_timeout"`
	Input      any    `json:"input"`
}

// Engine is a prepared admission policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the given Rego module.
func NewEngine(ctx context.Context, module string) (*Engine, error) {
	r := rego.New(
		rego.Query(Query),
		rego.Module("admission.rego", module),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// NewEngineFromFile prepares the module at path, or DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(data))
}

// Evaluate returns the sorted deny reasons for input. An empty result admits the request.
func (e *Engine) Evaluate(ctx context.Context, input Input) ([]string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(toValue(input)))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	set, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected deny value %T", results[0].Expressions[0].Value)
	}

	reasons := make([]string, 0, len(set))
	for _, v := range set {
		reasons = append(reasons, fmt.Sprint(v))
	}
	sort.Strings(reasons)
	return reasons, nil
}

// OPA walks plain maps; struct tags are not consulted.
func toValue(in Input) map[string]interface{} {
	return map[string]interface{}{
		"type":        in.Type,
		"session_id":  in.SessionID,
		"timeout":     in.Timeout,
		"max_timeout": in.MaxTimeout,
		"input":       in.Input,
	}
}

// DefaultPolicy admits any known widget type whose timeout does not exceed the
// configured cap. The input payload is opaque and left to the clients.
const DefaultPolicy = `
package agentui.admission

import rego.v1

widget_types := {"confirm", "select", "form", "upload", "table", "image"}

deny contains msg if {
	not widget_types[input.type]
	msg := sprintf("unknown widget type %q", [input.type])
}

deny contains msg if {
	input.max_timeout > 0
	input.timeout > input.max_timeout
	msg := sprintf("timeout %v exceeds maximum of %v seconds", [input.timeout, input.max_timeout])
}
`
