// Package daemon implements the long-running mode: scheduled sync passes
// for every registered feature plus the optional telemetry endpoint.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/msaario/campusync/internal/app"
	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/logging"
	"github.com/msaario/campusync/internal/observability"
)

// Command creates the daemon command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled sync passes until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().DurationVar(&settings.Sync.Interval, "interval", viper.GetDuration("sync.interval"), "Interval between scheduled sync passes")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")

	return viper.BindPFlags(cmd.Flags())
}

func runDaemon(settings *conf.Settings) error {
	a, err := app.New(settings)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, a.Metrics)
		if err != nil {
			return err
		}
		endpoint.Start(ctx)
	}

	a.Scheduler.Start(ctx)
	logging.Info("campusync daemon running",
		"site", settings.Site.URL, "interval", settings.Sync.Interval)

	<-ctx.Done()
	logging.Info("campusync daemon shutting down")
	return nil
}
