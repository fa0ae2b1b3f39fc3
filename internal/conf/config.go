// config.go: settings struct for the campusync client and the viper-backed
// functions to load and access them.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for a rotating log file.
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // Path to the log file
	Rotation RotationType // Type of log rotation
	MaxSize  int64        // Max size in bytes for RotationSize
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// MainSettings contains top-level client settings.
type MainSettings struct {
	Name string    // client instance name, used in logs and the ws user agent
	Log  LogConfig // log rotation settings shared by all service log files
}

// SiteSettings identifies the remote LMS site this client is bound to.
type SiteSettings struct {
	URL    string // base URL of the site, e.g. https://campus.example.org
	Token  string // web-service token issued for the mobile service
	ID     string // local site identifier, scopes rows in the offline store
	UserID int64  // id of the authenticated user on the site
}

// WSSettings contains settings for the remote web-service client.
type WSSettings struct {
	Timeout   time.Duration // per-call timeout
	CacheTTL  time.Duration // default freshness of cached call results
	UserAgent string        // User-Agent header, defaults from Main.Name
}

// StoreSettings contains settings for the local per-site store.
type StoreSettings struct {
	SQLite struct {
		Enabled bool   // true to enable the SQLite store
		Path    string // path to database file
	}
}

// SyncSettings contains settings for offline queue replay.
type SyncSettings struct {
	Interval time.Duration // scheduler interval between automatic passes
	// AbortOnTransportError stops the remaining batch on the first
	// connectivity failure, assuming the whole device is offline. Disable on
	// links with flaky per-request failures.
	AbortOnTransportError bool
	PerJobInterval        map[string]time.Duration // overrides per sync job
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to expose a Prometheus compatible telemetry endpoint
	Listen  string // IP address and port to listen on
}

// Settings is the root configuration for the client.
type Settings struct {
	Debug bool // true to enable debug logging

	Main      MainSettings
	Site      SiteSettings
	WS        WSSettings
	Store     StoreSettings
	Sync      SyncSettings
	Telemetry TelemetrySettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Defaults for each configuration parameter, defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading them if needed.
// Load errors here are fatal: callers rely on settings being present.
func Setting() *Settings {
	settingsMutex.RLock()
	loaded := settingsInstance != nil
	settingsMutex.RUnlock()

	if !loaded {
		if _, err := Load(); err != nil {
			log.Fatalf("Error loading settings: %v", err)
		}
	}
	return GetSettings()
}

// SetTestSettings replaces the settings instance. Intended for tests only.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// GetDefaultConfigPaths returns the config file search paths in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	return []string{
		filepath.Join(homeDir, ".config", "campusync"),
		".",
		"/etc/campusync",
	}, nil
}
