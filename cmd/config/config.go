// Package config implements commands to inspect and persist the effective
// configuration.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/msaario/campusync/internal/conf"
)

// Command creates the config command with its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and persist the effective configuration",
	}
	cmd.AddCommand(showCommand(settings), saveCommand())
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(_ *cobra.Command, _ []string) error {
			redacted := *settings
			if redacted.Site.Token != "" {
				redacted.Site.Token = "<redacted>"
			}

			out, err := yaml.Marshal(&redacted)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func saveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration back to the config file",
		Long:  "Persists values supplied through flags or environment variables. The existing file is overwritten; comments are not preserved.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return conf.SaveSettings()
		},
	}
}
