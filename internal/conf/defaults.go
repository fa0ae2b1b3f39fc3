// defaults.go: default values for the viper configuration.
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for each configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main settings
	viper.SetDefault("main.name", "campusync")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/campusync.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	// Site settings
	viper.SetDefault("site.url", "")
	viper.SetDefault("site.token", "")
	viper.SetDefault("site.id", "default")
	viper.SetDefault("site.userid", 0)

	// Web-service client settings
	viper.SetDefault("ws.timeout", 30*time.Second)
	viper.SetDefault("ws.cachettl", 5*time.Minute)
	viper.SetDefault("ws.useragent", "")

	// Local store settings
	viper.SetDefault("store.sqlite.enabled", true)
	viper.SetDefault("store.sqlite.path", "campusync.db")

	// Sync settings
	viper.SetDefault("sync.interval", 5*time.Minute)
	viper.SetDefault("sync.abortontransporterror", true)

	// Telemetry settings
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
}
