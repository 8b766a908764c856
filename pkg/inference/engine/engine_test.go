package engine

import (
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/require"
)

func TestNewTurnResult(t *testing.T) {
	res, err := NewTurnResult("hello", nil)
	require.NoError(t, err)
	require.Equal(t, Final{Text: "hello"}, res)

	calls := []ToolCall{{ID: "1", Name: "lookup", Input: json.RawMessage(`{}`)}}
	res, err = NewTurnResult("let me check", calls)
	require.NoError(t, err)
	require.Equal(t, ToolUse{Text: "let me check", Calls: calls}, res)

	_, err = NewTurnResult("", nil)
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestMessageText(t *testing.T) {
	m := Message{Role: RoleAssistant, Blocks: []Block{
		TextBlock("a"),
		ToolUseBlock(ToolCall{ID: "x", Name: "t"}),
		TextBlock(""),
		TextBlock("b"),
	}}
	require.Equal(t, "a\nb", m.Text())
	require.Equal(t, "hi", UserText("hi").Text())
}

func TestToolSpecSchemaJSON(t *testing.T) {
	s, err := ToolSpec{Name: "none"}.SchemaJSON()
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"type": "object"}, s)

	props := jsonschema.NewProperties()
	props.Set("city", &jsonschema.Schema{Type: "string"})
	s, err = ToolSpec{Name: "w", Parameters: &jsonschema.Schema{Type: "object", Properties: props, Required: []string{"city"}}}.SchemaJSON()
	require.NoError(t, err)
	require.Equal(t, "object", s["type"])
	require.Contains(t, s["properties"], "city")
	require.Equal(t, []interface{}{"city"}, s["required"])
}
