package main

import (
	"fmt"
	"os"

	"github.com/go-go-golems/atomclaw/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit persistent configuration overrides",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			defer func() {
				_ = enc.Close()
			}()
			enc.SetIndent(2)
			return enc.Encode(cfg.Redacted())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist an override, applied at the next start",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.OverridesPath(v.GetString("state-dir"))
			if err := config.SetOverride(path, args[0], args[1]); err != nil {
				return err
			}
			// reject values that would make the next start fail
			if _, err := loadConfig(); err != nil {
				_ = config.UnsetOverride(path, args[0])
				return errors.Wrapf(err, "override %s rejected", args[0])
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s set in %s\n", args[0], path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unset <key>",
		Short: "Remove an override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.OverridesPath(v.GetString("state-dir"))
			if err := config.UnsetOverride(path, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s unset in %s\n", args[0], path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "overrides",
		Short: "List the keys currently overridden",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := config.OverrideKeys(config.OverridesPath(v.GetString("state-dir")))
			if err != nil {
				return err
			}
			for _, k := range keys {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	})

	return cmd
}
