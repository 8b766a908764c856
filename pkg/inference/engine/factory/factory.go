package factory

import (
	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/steps/ai/claude"
	"github.com/go-go-golems/atomclaw/pkg/steps/ai/openai"
	"github.com/go-go-golems/atomclaw/pkg/steps/ai/settings"
	"github.com/go-go-golems/atomclaw/pkg/steps/ai/types"
	"github.com/pkg/errors"
)

// EngineFactory creates inference engines from provider settings.
type EngineFactory interface {
	CreateEngine(s *settings.Settings) (engine.Engine, error)
	SupportedProviders() []string
	DefaultProvider() string
}

type StandardEngineFactory struct{}

func NewStandardEngineFactory() *StandardEngineFactory {
	return &StandardEngineFactory{}
}

// CreateEngine picks the provider from s.ApiType, defaulting to claude when
// it is empty. The settings are cloned so later edits by the caller do not
// leak into the engine.
func (f *StandardEngineFactory) CreateEngine(s *settings.Settings) (engine.Engine, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}
	s = s.Clone()
	if s.ApiType == "" {
		s.ApiType = types.ApiType(f.DefaultProvider())
	}

	provider, err := types.ParseApiType(string(s.ApiType))
	if err != nil {
		return nil, err
	}
	s.ApiType = provider
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid settings for provider %s", provider)
	}

	switch provider {
	case types.ApiTypeOpenAI:
		return openai.NewEngine(s)
	case types.ApiTypeClaude:
		return claude.NewEngine(s)
	default:
		return nil, errors.Errorf("unsupported provider %s", provider)
	}
}

func (f *StandardEngineFactory) SupportedProviders() []string {
	return []string{
		string(types.ApiTypeOpenAI),
		string(types.ApiTypeClaude),
		"anthropic",
	}
}

func (f *StandardEngineFactory) DefaultProvider() string {
	return string(types.ApiTypeClaude)
}

// NewEngineFromSettings is a shorthand for the standard factory.
func NewEngineFromSettings(s *settings.Settings) (engine.Engine, error) {
	return NewStandardEngineFactory().CreateEngine(s)
}

var _ EngineFactory = (*StandardEngineFactory)(nil)
