package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, "Thư Viện Sách", cfg.LibraryName)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, "cyan", cfg.ThemeColor)
	assert.True(t, filepath.IsAbs(cfg.DataPath))
}

func TestLoadBackfillsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"library_name":"My Shelf","port":8080}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "My Shelf", cfg.LibraryName)
	assert.Equal(t, 8080, cfg.Port)
	// keys absent from the file come from defaults
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, "cyan", cfg.ThemeColor)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.LibraryName = "Renamed"
	cfg.Theme = "light"
	require.NoError(t, cfg.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.LibraryName)
	assert.Equal(t, "light", reloaded.Theme)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":-1}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	cfg := &Config{DataPath: "/data"}
	assert.Equal(t, filepath.Join("/data", "books"), cfg.BooksDir())
	assert.Equal(t, filepath.Join("/data", "static", "covers"), cfg.CoversDir())
	assert.Equal(t, filepath.Join("/data", "books.db"), cfg.DatabaseFile())
}
