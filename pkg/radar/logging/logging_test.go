package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidLevel))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestGet_BeforeInitDiscards(t *testing.T) {
	require.NoError(t, Close())
	logger := Get("sync")
	assert.Equal(t, "sync", logger.Component())
	assert.NotPanics(t, func() { logger.Info("discarded", "k", "v") })
}

func TestInit_WritesComponentLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "radarsync.log")
	require.NoError(t, Init(Config{
		Level:      "info",
		Path:       path,
		Components: map[string]string{"prune": "error"},
	}))
	t.Cleanup(func() { _ = Close() })

	Get("sync").Info("pass complete", "downloaded", 3)
	Get("sync").Debug("hidden debug")
	Get("prune").Warn("hidden warning")
	Get("prune").Error("prune failed", "level", "IDR043")
	Get("poll").With("pass", "abc").Info("waiting")

	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "pass complete")
	assert.Contains(t, content, "downloaded=3")
	assert.Contains(t, content, "prune failed")
	assert.Contains(t, content, "pass=abc")
	assert.NotContains(t, content, "hidden debug")
	assert.NotContains(t, content, "hidden warning")
}

func TestInit_InvalidLevels(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, Init(Config{Level: "nope", Path: filepath.Join(dir, "a.log")}))
	assert.Error(t, Init(Config{Level: "info", Path: filepath.Join(dir, "b.log"), Components: map[string]string{"x": "nope"}}))
	assert.Error(t, Init(Config{Level: "info", Path: filepath.Join(dir, "c.log"), ConsoleLevel: "nope"}))
}

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radarsync.log")
	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 16, MaxBackups: 2})
	require.NoError(t, err)

	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("0123456789abc\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)

	rotated := 0
	for _, e := range entries {
		if e.Name() != "radarsync.log" && strings.HasPrefix(e.Name(), "radarsync.") {
			rotated++
		}
	}
	assert.LessOrEqual(t, rotated, 2)
	assert.Greater(t, rotated, 0)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
