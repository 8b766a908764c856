package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/steps/ai/settings"
	"github.com/go-go-golems/atomclaw/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "ATOMCLAW"
	ConfigName    = "atomclaw"
	OverridesFile = "overrides.yaml"
)

// Defaults lists every known key with its default value.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"state-dir": defaultStateDir(),

		"discord.app-id":           "",
		"discord.public-key":       "",
		"discord.interaction-path": "/interactions",
		"discord.max-reply-length": 2000,
		"discord.followup-timeout": 10 * time.Second,

		"cloud.base-url":        "",
		"cloud.token":           "",
		"cloud.timeout":         10 * time.Second,
		"cloud.save-queue":      32,
		"cloud.save-workers":    2,
		"cloud.summary-max-len": 2048,
		"cloud.allow-insecure":  false,

		"llm.provider":       string(types.ApiTypeClaude),
		"llm.model":          "claude-3-5-haiku-latest",
		"llm.api-key":        "",
		"llm.base-url":       "",
		"llm.max-tokens":     settings.DefaultMaxTokens,
		"llm.timeout":        settings.DefaultTimeout,
		"llm.allow-insecure": false,

		"agent.session-capacity":    20,
		"agent.max-turn-bytes":      4096,
		"agent.max-iterations":      5,
		"agent.local-window":        4,
		"agent.tool-output-max":     8192,
		"agent.tool-timeout":        10 * time.Second,
		"agent.fallback-text":       DefaultFallbackText,
		"agent.persona":             DefaultPersona,
		"agent.prompt-token-budget": 0,

		"bus.inbound-capacity":  8,
		"bus.outbound-capacity": 8,

		"http.listen":            ":8080",
		"http.max-body-bytes":    8192,
		"http.max-user-id-bytes": 32,
		"http.max-text-bytes":    512,
		"http.shutdown-timeout":  5 * time.Second,
	}
}

const DefaultPersona = "You are AtomClaw, a small personal assistant reachable from Discord. " +
	"Answer briefly and plainly. Use the available tools when they help and never invent tool results."

// IsKnownKey reports whether key is a configuration key.
func IsKnownKey(key string) bool {
	_, ok := Defaults()[key]
	return ok
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".atomclaw"
	}
	return filepath.Join(home, ".atomclaw")
}

// NewViper returns a viper instance with defaults and environment binding.
// Flags are bound by the caller before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range Defaults() {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load layers defaults, the config file, the overrides file, the environment
// and bound flags, in increasing precedence.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.atomclaw")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config file")
		}
	}

	overridesPath := OverridesPath(v.GetString("state-dir"))
	overrides, err := ReadOverrides(overridesPath)
	if err != nil {
		return Config{}, err
	}
	if len(overrides) > 0 {
		if err := v.MergeConfigMap(overrides); err != nil {
			return Config{}, errors.Wrap(err, "merge overrides")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	log.Debug().
		Str("config", v.ConfigFileUsed()).
		Str("overrides", overridesPath).
		Int("override_keys", len(overrides)).
		Msg("loaded configuration")
	return cfg, nil
}

func OverridesPath(stateDir string) string {
	return filepath.Join(stateDir, OverridesFile)
}
