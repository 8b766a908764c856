package main

import (
	"io"
	"os"

	"github.com/go-go-golems/atomclaw/pkg/config"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "atomclaw",
	Short: "atomclaw answers Discord interactions with a tool-using language model",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger now that flags are parsed
		return initLogger()
	},
	SilenceUsage: true,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() error {
	return InitLogger(&logConfig{
		Level:      v.GetString("log-level"),
		LogFile:    v.GetString("log-file"),
		LogFormat:  v.GetString("log-format"),
		WithCaller: v.GetBool("with-caller"),
	})
}

func InitLogger(lc *logConfig) error {
	if lc.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}

	format := lc.LogFormat
	if format == "" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		}
	}
	var logWriter io.Writer
	if format == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if lc.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   lc.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, //days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func bindFlag(cmd *cobra.Command, key string, flag string) {
	cobra.CheckErr(v.BindPFlag(key, cmd.Flags().Lookup(flag)))
}

// loadConfig resolves the layered configuration for a command.
func loadConfig() (config.Config, error) {
	return config.Load(v, v.GetString("config"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Bool("with-caller", false, "Log caller")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "", "Log format (json, text); text when stderr is a terminal")
	pf.String("log-file", "", "Also log to this file, rotated")
	pf.String("config", "", "Path to config file (default ./atomclaw.yaml or ~/.atomclaw/atomclaw.yaml)")
	pf.String("state-dir", "", "Directory holding overrides.yaml (default ~/.atomclaw)")

	for _, name := range []string{"with-caller", "log-level", "log-format", "log-file", "config", "state-dir"} {
		cobra.CheckErr(v.BindPFlag(name, pf.Lookup(name)))
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newConfigCommand())
}
