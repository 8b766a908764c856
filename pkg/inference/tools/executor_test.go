package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type lookupIn struct {
	City string `json:"city" jsonschema:"description=City name"`
}

func newTestExecutor(t *testing.T, cfg ExecutorConfig) *Executor {
	t.Helper()
	reg := NewInMemoryToolRegistry()
	register := func(name string, fn interface{}) {
		def, err := NewToolFromFunc(name, name, fn)
		require.NoError(t, err)
		require.NoError(t, reg.RegisterTool(name, *def))
	}
	register("lookup", func(in lookupIn) (map[string]string, error) {
		return map[string]string{"city": in.City, "weather": "sunny"}, nil
	})
	register("fail", func() (string, error) { return "", errors.New("sensor offline") })
	register("boom", func() string { panic("kaboom") })
	register("slow", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	register("big", func() string { return strings.Repeat("z", 100) })
	return NewExecutor(reg, cfg)
}

func TestExecutorSuccess(t *testing.T) {
	ex := newTestExecutor(t, DefaultExecutorConfig())
	res := ex.Execute(context.Background(), engine.ToolCall{ID: "c1", Name: "lookup", Input: json.RawMessage(`{"city":"Oslo"}`)})
	require.Equal(t, "c1", res.ToolUseID)
	require.False(t, res.IsError)
	require.JSONEq(t, `{"city":"Oslo","weather":"sunny"}`, res.Content)
}

func TestExecutorFailuresAreText(t *testing.T) {
	ex := newTestExecutor(t, ExecutorConfig{Timeout: 50 * time.Millisecond})

	tests := []struct {
		name     string
		call     engine.ToolCall
		contains string
	}{
		{name: "unknown", call: engine.ToolCall{ID: "1", Name: "nope"}, contains: "unknown tool"},
		{name: "error", call: engine.ToolCall{ID: "2", Name: "fail"}, contains: "sensor offline"},
		{name: "panic", call: engine.ToolCall{ID: "3", Name: "boom"}, contains: "panicked"},
		{name: "timeout", call: engine.ToolCall{ID: "4", Name: "slow"}, contains: "timed out"},
		{name: "schema", call: engine.ToolCall{ID: "5", Name: "lookup", Input: json.RawMessage(`{"city":7}`)}, contains: "invalid input"},
		{name: "missing field", call: engine.ToolCall{ID: "6", Name: "lookup", Input: json.RawMessage(`{}`)}, contains: "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ex.Execute(context.Background(), tt.call)
			require.Equal(t, tt.call.ID, res.ToolUseID)
			require.True(t, res.IsError)
			require.True(t, strings.HasPrefix(res.Content, "Error: "), res.Content)
			require.Contains(t, res.Content, tt.contains)
		})
	}
}

func TestExecutorClampsOutput(t *testing.T) {
	ex := newTestExecutor(t, ExecutorConfig{MaxOutputBytes: 10})
	res := ex.Execute(context.Background(), engine.ToolCall{ID: "b", Name: "big"})
	require.Equal(t, strings.Repeat("z", 10), res.Content)
}

func TestExecutorWithoutRegistry(t *testing.T) {
	res := NewExecutor(nil, ExecutorConfig{}).Execute(context.Background(), engine.ToolCall{ID: "x", Name: "any"})
	require.True(t, res.IsError)
}
