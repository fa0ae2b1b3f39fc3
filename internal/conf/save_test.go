package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	s := validSettings()
	s.Main.Name = "campusync-test"
	require.NoError(t, SaveYAMLConfig(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Settings
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, s.Site.URL, loaded.Site.URL)
	assert.Equal(t, s.Main.Name, loaded.Main.Name)
	assert.Equal(t, s.Sync.Interval, loaded.Sync.Interval)
}

func TestSaveYAMLConfigRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, validSettings()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "config carries the token")
}

func TestSaveYAMLConfigOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("main:\n  name: old\n"), 0o600))

	s := validSettings()
	s.Main.Name = "new"
	require.NoError(t, SaveYAMLConfig(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var loaded Settings
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, "new", loaded.Main.Name)
}
