// Package policy decides which tools may be advertised to a provider.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"github.com/xiaot623/chatd/internal/domain"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is the document evaluated for each tool of a turn.
type Input struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Server   string `json:"server"`
	Tool     string `json:"tool"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate returns the decision for one tool.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// The policy is expected to define a default.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// Filter drops the tools the policy blocks for this user and model.
func (e *Engine) Filter(ctx context.Context, userID, provider, model string, tools []domain.ToolDescriptor) ([]domain.ToolDescriptor, error) {
	out := make([]domain.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		decision, err := e.Evaluate(ctx, Input{
			UserID:   userID,
			Provider: provider,
			Model:    model,
			Server:   t.Server,
			Tool:     t.Name,
		})
		if err != nil {
			return nil, err
		}
		if decision == DecisionBlock {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package tool_policy

default decision = "allow"

# Example: never offer file writes to third-party hosted open models
decision = "block" {
	input.server == "filesystem"
	input.tool == "write_file"
	input.provider == "groq"
}
`
