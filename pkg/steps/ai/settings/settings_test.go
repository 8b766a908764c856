package settings

import (
	"testing"

	"github.com/go-go-golems/atomclaw/pkg/steps/ai/types"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	s := NewSettings()
	require.Error(t, s.Validate())

	s.Model = "claude-3-5-haiku-latest"
	require.Error(t, s.Validate())

	s.APIKey = "k"
	require.NoError(t, s.Validate())

	s.ApiType = "gemini"
	require.Error(t, s.Validate())

	s.ApiType = "anthropic"
	s.MaxTokens = 0
	require.Error(t, s.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	temp := 0.2
	s := NewSettings()
	s.Temperature = &temp

	c := s.Clone()
	*c.Temperature = 0.9
	c.ApiType = types.ApiTypeOpenAI

	require.Equal(t, 0.2, *s.Temperature)
	require.Equal(t, types.ApiTypeClaude, s.ApiType)
}

func TestHTTPTimeout(t *testing.T) {
	s := &Settings{}
	require.Equal(t, DefaultTimeout, s.HTTPTimeout())
}
