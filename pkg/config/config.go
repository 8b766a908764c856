// Package config loads the immutable start-up configuration.
package config

import (
	"time"

	"github.com/go-go-golems/atomclaw/pkg/steps/ai/settings"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

const DefaultFallbackText = "Sorry, I couldn't process your request."

type Discord struct {
	AppID           string        `mapstructure:"app-id" yaml:"app-id"`
	PublicKey       string        `mapstructure:"public-key" yaml:"public-key"`
	InteractionPath string        `mapstructure:"interaction-path" yaml:"interaction-path"`
	MaxReplyLength  int           `mapstructure:"max-reply-length" yaml:"max-reply-length"`
	FollowUpTimeout time.Duration `mapstructure:"followup-timeout" yaml:"followup-timeout"`
}

type Cloud struct {
	BaseURL       string        `mapstructure:"base-url" yaml:"base-url"`
	Token         string        `mapstructure:"token" yaml:"token"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SaveQueue     int           `mapstructure:"save-queue" yaml:"save-queue"`
	SaveWorkers   int           `mapstructure:"save-workers" yaml:"save-workers"`
	SummaryMaxLen int           `mapstructure:"summary-max-len" yaml:"summary-max-len"`
	AllowInsecure bool          `mapstructure:"allow-insecure" yaml:"allow-insecure"`
}

type Agent struct {
	SessionCapacity   int           `mapstructure:"session-capacity" yaml:"session-capacity"`
	MaxTurnBytes      int           `mapstructure:"max-turn-bytes" yaml:"max-turn-bytes"`
	MaxIterations     int           `mapstructure:"max-iterations" yaml:"max-iterations"`
	LocalWindow       int           `mapstructure:"local-window" yaml:"local-window"`
	ToolOutputMax     int           `mapstructure:"tool-output-max" yaml:"tool-output-max"`
	ToolTimeout       time.Duration `mapstructure:"tool-timeout" yaml:"tool-timeout"`
	FallbackText      string        `mapstructure:"fallback-text" yaml:"fallback-text"`
	Persona           string        `mapstructure:"persona" yaml:"persona"`
	PromptTokenBudget int           `mapstructure:"prompt-token-budget" yaml:"prompt-token-budget"`
}

type Bus struct {
	InboundCapacity  int `mapstructure:"inbound-capacity" yaml:"inbound-capacity"`
	OutboundCapacity int `mapstructure:"outbound-capacity" yaml:"outbound-capacity"`
}

type HTTP struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	MaxBodyBytes    int64         `mapstructure:"max-body-bytes" yaml:"max-body-bytes"`
	MaxUserIDBytes  int           `mapstructure:"max-user-id-bytes" yaml:"max-user-id-bytes"`
	MaxTextBytes    int           `mapstructure:"max-text-bytes" yaml:"max-text-bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" yaml:"shutdown-timeout"`
}

// Config is built once at start-up and handed to constructors by value.
type Config struct {
	StateDir string            `mapstructure:"state-dir" yaml:"state-dir"`
	Discord  Discord           `mapstructure:"discord" yaml:"discord"`
	Cloud    Cloud             `mapstructure:"cloud" yaml:"cloud"`
	LLM      settings.Settings `mapstructure:"llm" yaml:"llm"`
	Agent    Agent             `mapstructure:"agent" yaml:"agent"`
	Bus      Bus               `mapstructure:"bus" yaml:"bus"`
	HTTP     HTTP              `mapstructure:"http" yaml:"http"`
}

func (c Config) Clone() Config {
	return clone.Clone(c).(Config)
}

// CloudEnabled reports whether the remote history store is configured.
func (c Config) CloudEnabled() bool {
	return c.Cloud.BaseURL != ""
}

// Validate checks the sizes and capacities. Provider credentials are checked
// when the engine is built, so commands that never call the model still run
// without them.
func (c Config) Validate() error {
	positive := []struct {
		key string
		v   int64
	}{
		{"discord.max-reply-length", int64(c.Discord.MaxReplyLength)},
		{"discord.followup-timeout", int64(c.Discord.FollowUpTimeout)},
		{"cloud.timeout", int64(c.Cloud.Timeout)},
		{"cloud.save-queue", int64(c.Cloud.SaveQueue)},
		{"cloud.save-workers", int64(c.Cloud.SaveWorkers)},
		{"cloud.summary-max-len", int64(c.Cloud.SummaryMaxLen)},
		{"agent.session-capacity", int64(c.Agent.SessionCapacity)},
		{"agent.max-turn-bytes", int64(c.Agent.MaxTurnBytes)},
		{"agent.max-iterations", int64(c.Agent.MaxIterations)},
		{"agent.local-window", int64(c.Agent.LocalWindow)},
		{"agent.tool-output-max", int64(c.Agent.ToolOutputMax)},
		{"agent.tool-timeout", int64(c.Agent.ToolTimeout)},
		{"bus.inbound-capacity", int64(c.Bus.InboundCapacity)},
		{"bus.outbound-capacity", int64(c.Bus.OutboundCapacity)},
		{"http.max-body-bytes", c.HTTP.MaxBodyBytes},
		{"http.max-user-id-bytes", int64(c.HTTP.MaxUserIDBytes)},
		{"http.max-text-bytes", int64(c.HTTP.MaxTextBytes)},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return errors.Errorf("%s must be positive, got %d", p.key, p.v)
		}
	}
	if c.Agent.PromptTokenBudget < 0 {
		return errors.Errorf("agent.prompt-token-budget must not be negative, got %d", c.Agent.PromptTokenBudget)
	}
	if c.Agent.FallbackText == "" {
		return errors.New("agent.fallback-text must not be empty")
	}
	if c.HTTP.Listen == "" {
		return errors.New("http.listen must not be empty")
	}
	if c.Discord.InteractionPath == "" || c.Discord.InteractionPath[0] != '/' {
		return errors.Errorf("discord.interaction-path must start with /, got %q", c.Discord.InteractionPath)
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	r := c.Clone()
	r.LLM.APIKey = mask(r.LLM.APIKey)
	r.Cloud.Token = mask(r.Cloud.Token)
	return r
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
