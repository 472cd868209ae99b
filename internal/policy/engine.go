// Package policy decides what a controller does when its push stream fails.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

// Decision is the outcome of a stream error evaluation.
type Decision string

const (
	// DecisionGiveUp closes the stream and surfaces a fatal error.
	DecisionGiveUp Decision = "give_up"
	// DecisionDegrade keeps the last known state visible while the source retries.
	DecisionDegrade Decision = "degrade"
	// DecisionRetry lets the source retry without touching state.
	DecisionRetry Decision = "retry"
)

func (d Decision) valid() bool {
	return d == DecisionGiveUp || d == DecisionDegrade || d == DecisionRetry
}

// Input is the document the policy is evaluated against.
type Input struct {
	Variant    domain.Variant `json:"variant"`
	Attempt    int            `json:"attempt"`
	MaxRetries int            `json:"max_retries"`
	Status     domain.Status  `json:"status"`
	Error      string         `json:"error"`
}

// Decider is the interface the controllers depend on.
type Decider interface {
	Decide(ctx context.Context, in Input) (Decision, error)
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the given policy module. The module must define
// data.stream_policy.decision.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.stream_policy.decision"),
		rego.Module("stream_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadFile prepares the policy stored at path. An empty path loads DefaultPolicy.
func LoadFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Decide evaluates the policy. On any evaluation problem it returns
// DecisionGiveUp together with the error.
func (e *Engine) Decide(ctx context.Context, in Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return DecisionGiveUp, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionGiveUp, nil
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return DecisionGiveUp, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	d := Decision(s)
	if !d.valid() {
		return DecisionGiveUp, fmt.Errorf("unknown policy decision %q", s)
	}
	return d, nil
}

// DefaultPolicy gives up on agent streams and degrades roster streams until
// the retry budget is spent. max_retries <= 0 means unbounded.
const DefaultPolicy = `
package stream_policy

default decision := "give_up"

decision := "degrade" if {
	input.variant == "roster"
	not exhausted
}

exhausted if {
	input.max_retries > 0
	input.attempt > input.max_retries
}
`
