// Package settings holds the language model connection settings.
package settings

import (
	"time"

	"github.com/go-go-golems/atomclaw/pkg/steps/ai/types"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

const (
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
)

type Settings struct {
	ApiType     types.ApiType `yaml:"provider" mapstructure:"provider"`
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api-key" mapstructure:"api-key"`
	BaseURL     string        `yaml:"base-url,omitempty" mapstructure:"base-url"`
	MaxTokens   int           `yaml:"max-tokens" mapstructure:"max-tokens"`
	Temperature *float64      `yaml:"temperature,omitempty" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// AllowInsecure permits an http or private BaseURL, for local model servers.
	AllowInsecure bool `yaml:"allow-insecure,omitempty" mapstructure:"allow-insecure"`
}

func NewSettings() *Settings {
	return &Settings{
		ApiType:   types.ApiTypeClaude,
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) Validate() error {
	if _, err := types.ParseApiType(string(s.ApiType)); err != nil {
		return err
	}
	if s.Model == "" {
		return errors.Errorf("%s: model is required", s.ApiType)
	}
	if s.APIKey == "" {
		return errors.Errorf("%s: api key is required", s.ApiType)
	}
	if s.MaxTokens <= 0 {
		return errors.Errorf("%s: max tokens must be positive, got %d", s.ApiType, s.MaxTokens)
	}
	return nil
}

// HTTPTimeout returns the per-request timeout, falling back to the default.
func (s *Settings) HTTPTimeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}
