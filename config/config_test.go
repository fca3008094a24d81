package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app_root: ./game
log_level: debug
feed_addr: ":9000"
backend:
  libraries: [shell]
types:
  Ship:
    include_paths: [vendor]
    preload_host: true
    interface: objects.Ship
functions:
  - name: Score
    path: Score.go
    options:
      preload_host: true
app:
  path: Game.go
  transfer_state: true
  width: 1024
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./game", cfg.AppRoot)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.FeedAddr)
	assert.Equal(t, ":9464", cfg.MetricsAddr, "defaults survive a partial file")
	assert.Equal(t, []string{"src", "include"}, cfg.SearchDirs)
	assert.Equal(t, []string{"shell"}, cfg.Backend.Libraries)

	ship := cfg.TypeOptions("Ship")
	assert.Equal(t, []string{"vendor"}, ship.IncludePaths)
	assert.True(t, ship.PreloadHost)
	assert.Equal(t, "objects.Ship", ship.Interface)
	assert.Empty(t, cfg.TypeOptions("Boat").Interface)

	require.Len(t, cfg.Functions, 1)
	assert.Equal(t, "Score", cfg.Functions[0].Name)
	assert.True(t, cfg.Functions[0].Options.PreloadHost)

	assert.Equal(t, "Game.go", cfg.App.Path)
	assert.True(t, cfg.App.TransferState)
	assert.Equal(t, 1024, cfg.App.Width)
	assert.Equal(t, 600, cfg.App.Height)
	assert.Equal(t, float64(60), cfg.App.FrameRate)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "syntax", content: "app_root: [\n"},
		{name: "log level", content: "log_level: loud\n"},
		{name: "frame rate", content: "app:\n  frame_rate: -1\n"},
		{name: "function without path", content: "functions:\n  - name: Score\n"},
		{name: "duplicate function", content: "functions:\n  - {name: A, path: A.go}\n  - {name: A, path: B.go}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadOrDefault(writeConfig(t, "log_level: loud\n"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
