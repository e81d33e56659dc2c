package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".agent")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStore_LoadFromFile(t *testing.T) {
	path := writeSettings(t, t.TempDir(), "name: build-01\nwork_folder: _work\nserver_url: https://server\n")

	s := NewStore(path, nil)
	require.NoError(t, s.Load())

	settings, ok := s.Settings()
	require.True(t, ok)
	assert.Equal(t, "build-01", settings.Name)
	assert.Equal(t, "_work", settings.WorkFolder)
	assert.Equal(t, "https://server", settings.ServerURL)

	folder, ok := s.WorkFolder()
	require.True(t, ok)
	assert.Equal(t, "_work", folder)
}

func TestStore_MissingFileUnconfigured(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), ".agent"), nil)
	require.NoError(t, s.Load())

	_, ok := s.Settings()
	assert.False(t, ok)
	_, ok = s.WorkFolder()
	assert.False(t, ok)
}

func TestStore_WorkFolderDefault(t *testing.T) {
	path := writeSettings(t, t.TempDir(), "name: build-01\n")

	s := NewStore(path, nil)
	require.NoError(t, s.Load())

	folder, ok := s.WorkFolder()
	require.True(t, ok)
	assert.Equal(t, DefaultWorkFolder, folder)
}

func TestStore_EnvOverride(t *testing.T) {
	path := writeSettings(t, t.TempDir(), "work_folder: _work\n")
	t.Setenv("AGENT_WORK_FOLDER", "_custom")

	s := NewStore(path, nil)
	require.NoError(t, s.Load())

	folder, ok := s.WorkFolder()
	require.True(t, ok)
	assert.Equal(t, "_custom", folder)
}

func TestStore_EnvOnlyConfiguration(t *testing.T) {
	t.Setenv("AGENT_WORK_FOLDER", "_envwork")

	s := NewStore(filepath.Join(t.TempDir(), ".agent"), nil)
	require.NoError(t, s.Load())

	folder, ok := s.WorkFolder()
	require.True(t, ok)
	assert.Equal(t, "_envwork", folder)
}

func TestStore_InvalidYAML(t *testing.T) {
	path := writeSettings(t, t.TempDir(), "work_folder: [unclosed\n")

	s := NewStore(path, nil)
	assert.Error(t, s.Load())
}

func TestStore_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "work_folder: _work\n")

	s := NewStore(path, nil)
	require.NoError(t, s.Load())
	require.NoError(t, s.Watch())
	defer s.Close()

	writeSettings(t, dir, "work_folder: _changed\n")

	require.Eventually(t, func() bool {
		folder, ok := s.WorkFolder()
		return ok && folder == "_changed"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStore_CloseIdempotent(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), ".agent"), nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
