package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseApiType(t *testing.T) {
	for in, want := range map[string]ApiType{
		"openai":    ApiTypeOpenAI,
		"Claude":    ApiTypeClaude,
		"anthropic": ApiTypeClaude,
	} {
		got, err := ParseApiType(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseApiType("gemini")
	require.Error(t, err)
}
