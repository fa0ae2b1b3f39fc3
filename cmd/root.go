// Package cmd builds the campusync command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/msaario/campusync/cmd/config"
	"github.com/msaario/campusync/cmd/daemon"
	"github.com/msaario/campusync/cmd/note"
	"github.com/msaario/campusync/cmd/queue"
	synccmd "github.com/msaario/campusync/cmd/sync"
	"github.com/msaario/campusync/internal/buildinfo"
	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/logging"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "campusync",
		Short: "Offline-first LMS sync client",
		Long: "campusync talks to a Moodle-compatible site over its web-service API,\n" +
			"queues writes made while offline in a local store and replays them on\n" +
			"scheduled or on-demand sync passes.",
		SilenceUsage: true,
		Version:      buildinfo.String(),
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		daemon.Command(settings),
		synccmd.Command(settings),
		queue.Command(settings),
		note.Command(settings),
		configcmd.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// Flags are parsed by now; logging follows the effective debug value.
		logging.Init(settings.Debug)
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Site.URL, "site", viper.GetString("site.url"), "LMS site base URL")
	rootCmd.PersistentFlags().StringVar(&settings.Site.Token, "token", viper.GetString("site.token"), "Web-service token")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
