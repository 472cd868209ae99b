package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want Decision
	}{
		{"agent gives up", Input{Variant: domain.VariantAgent, Attempt: 1}, DecisionGiveUp},
		{"roster degrades", Input{Variant: domain.VariantRoster, Attempt: 1, MaxRetries: 3}, DecisionDegrade},
		{"roster at limit degrades", Input{Variant: domain.VariantRoster, Attempt: 3, MaxRetries: 3}, DecisionDegrade},
		{"roster exhausted gives up", Input{Variant: domain.VariantRoster, Attempt: 4, MaxRetries: 3}, DecisionGiveUp},
		{"roster unbounded", Input{Variant: domain.VariantRoster, Attempt: 100}, DecisionDegrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Decide(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, `
package stream_policy

default decision := "give_up"

decision := "retry" if {
	input.variant == "agent"
	input.attempt < 3
}
`)
	require.NoError(t, err)

	got, err := engine.Decide(ctx, Input{Variant: domain.VariantAgent, Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionRetry, got)

	got, err = engine.Decide(ctx, Input{Variant: domain.VariantAgent, Attempt: 3})
	require.NoError(t, err)
	assert.Equal(t, DecisionGiveUp, got)
}

func TestUnknownDecisionFallsBackToGiveUp(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, `
package stream_policy

decision := "explode"
`)
	require.NoError(t, err)

	got, err := engine.Decide(ctx, Input{Variant: domain.VariantAgent})
	assert.Error(t, err)
	assert.Equal(t, DecisionGiveUp, got)
}

func TestUndefinedDecisionGivesUp(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, `
package stream_policy

decision := "degrade" if {
	input.variant == "roster"
}
`)
	require.NoError(t, err)

	got, err := engine.Decide(ctx, Input{Variant: domain.VariantAgent})
	require.NoError(t, err)
	assert.Equal(t, DecisionGiveUp, got)
}

func TestInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package stream_policy\n\ndecision := {")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()

	engine, err := LoadFile(ctx, "")
	require.NoError(t, err)
	got, err := engine.Decide(ctx, Input{Variant: domain.VariantRoster})
	require.NoError(t, err)
	assert.Equal(t, DecisionDegrade, got)

	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte("package stream_policy\n\ndecision := \"retry\"\n"), 0o600))
	engine, err = LoadFile(ctx, path)
	require.NoError(t, err)
	got, err = engine.Decide(ctx, Input{Variant: domain.VariantRoster})
	require.NoError(t, err)
	assert.Equal(t, DecisionRetry, got)

	_, err = LoadFile(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
