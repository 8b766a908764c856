package types

import (
	"strings"

	"github.com/pkg/errors"
)

type ApiType string

const (
	ApiTypeOpenAI ApiType = "openai"
	ApiTypeClaude ApiType = "claude"
)

// ParseApiType accepts the provider names used in config files. "anthropic"
// is an alias for claude.
func ParseApiType(s string) (ApiType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ApiTypeOpenAI, nil
	case "claude", "anthropic":
		return ApiTypeClaude, nil
	default:
		return "", errors.Errorf("unsupported provider %q (want openai or claude)", s)
	}
}
