package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SaveSettings persists the current settings to the active configuration
// file, so values supplied through flags or the environment survive the
// process.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	if settingsInstance == nil {
		return fmt.Errorf("settings not loaded")
	}
	settingsCopy := *settingsInstance

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error finding config file: %w", err)
		}
		configPath = filepath.Join(paths[0], "config.yaml")
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved to %s", configPath)
	return nil
}

// SaveYAMLConfig overwrites the configuration file with the given settings.
// Comments and key ordering of the previous file are not preserved. The
// write is atomic: a temporary file in the same directory is renamed over
// the original.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	// The file carries the web-service token.
	if err := os.Chmod(tempFileName, 0o600); err != nil {
		return fmt.Errorf("error restricting config file permissions: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
