package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/chatd/internal/domain"
)

var testTools = []domain.ToolDescriptor{
	{Server: "filesystem", Name: "read_file"},
	{Server: "filesystem", Name: "write_file"},
	{Server: "sqlite", Name: "query"},
}

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	decision, err := e.Evaluate(ctx, Input{Provider: "openai", Server: "filesystem", Tool: "write_file"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)

	decision, err = e.Evaluate(ctx, Input{Provider: "groq", Server: "filesystem", Tool: "write_file"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	out, err := e.Filter(ctx, "u1", "groq", "gemma-7b-it", testTools)
	require.NoError(t, err)
	assert.Equal(t, []domain.ToolDescriptor{testTools[0], testTools[2]}, out)

	out, err = e.Filter(ctx, "u1", "openai", "gpt-4", testTools)
	require.NoError(t, err)
	assert.Equal(t, testTools, out)
}

func TestNewEngineFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte(`
package tool_policy

default decision = "allow"

decision = "block" {
	input.user_id == "guest"
	input.server == "sqlite"
}
`), 0o644))

	e, err := NewEngineFromFile(ctx, path)
	require.NoError(t, err)

	out, err := e.Filter(ctx, "guest", "openai", "gpt-4", testTools)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = e.Filter(ctx, "member", "openai", "gpt-4", testTools)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package tool_policy\n decision = ")
	assert.Error(t, err)

	_, err = NewEngineFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
