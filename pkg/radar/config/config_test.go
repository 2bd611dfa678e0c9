package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLevels, cfg.Levels)
	assert.Equal(t, filepath.Join(DataDir(), "img"), cfg.Archive.Root)
	assert.True(t, cfg.Archive.ClearOnStart)
	assert.Equal(t, DefaultMarker, cfg.Archive.Marker)
	assert.Equal(t, DefaultRemoteAddress, cfg.Remote.Address)
	assert.Equal(t, DefaultFramesDir, cfg.Remote.FramesDir)
	assert.Equal(t, DefaultReferencesDir, cfg.Remote.ReferencesDir)
	assert.Equal(t, DefaultRemoteTimeout, cfg.Remote.Timeout)
	assert.Equal(t, DefaultExclude, cfg.Remote.Exclude)
	assert.Equal(t, 5*time.Minute, cfg.Poll.LongWait)
	assert.Equal(t, time.Minute, cfg.Poll.ShortWait)
	assert.Equal(t, time.Second, cfg.Poll.Tick)
	assert.True(t, cfg.Retention.Enabled)
	assert.False(t, cfg.Retention.Trash)
	assert.True(t, cfg.Consumer.Enabled)
	assert.False(t, cfg.Consumer.AutoConfirm)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, DefaultHistoryRetentionDays, cfg.History.RetentionDays)
	assert.Empty(t, cfg.File)

	minFree, err := cfg.MinFreeBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(64_000_000), minFree)
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "radarsync")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	content := `
levels: [IDR022, IDR023, IDR024]
archive:
  root: ~/radar
  clear_on_start: false
  marker: "+"
  min_free: 0
poll:
  long_wait: 10m
  short_wait: 30s
retention:
  trash: true
consumer:
  auto_confirm: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"IDR022", "IDR023", "IDR024"}, cfg.Levels)
	assert.Equal(t, filepath.Join(home, "radar"), cfg.Archive.Root)
	assert.False(t, cfg.Archive.ClearOnStart)
	assert.Equal(t, "+", cfg.Archive.Marker)
	assert.Equal(t, 10*time.Minute, cfg.Poll.LongWait)
	assert.Equal(t, 30*time.Second, cfg.Poll.ShortWait)
	assert.True(t, cfg.Retention.Trash)
	assert.True(t, cfg.Consumer.AutoConfirm)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.File)

	minFree, err := cfg.MinFreeBytes()
	require.NoError(t, err)
	assert.Zero(t, minFree)
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "radar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  address: example.org:2121\n"), 0o644))

	cfg, err := Load(WithFile(path))
	require.NoError(t, err)
	assert.Equal(t, "example.org:2121", cfg.Remote.Address)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	isolate(t)
	t.Setenv("RADARSYNC_POLL_SHORT_WAIT", "15s")
	t.Setenv("RADARSYNC_REMOTE_EXCLUDE", ".jpg")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Poll.ShortWait)
	assert.Equal(t, ".jpg", cfg.Remote.Exclude)
}

func TestLoad_FlagOverride(t *testing.T) {
	isolate(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("archive", "", "")
	require.NoError(t, fs.Parse([]string{"--archive", "/srv/radar"}))

	cfg, err := Load(WithFlag("archive.root", fs.Lookup("archive")), WithFlag("ignored", nil))
	require.NoError(t, err)
	assert.Equal(t, "/srv/radar", cfg.Archive.Root)
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("levels: [unterminated"), 0o644))

	_, err := Load(WithFile(path))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Levels:  []string{"IDR042", "IDR043", "IDR044"},
			Archive: ArchiveConfig{Root: "/tmp/img", Marker: "_", MinFree: "1MB"},
			Poll:    PollConfig{LongWait: time.Minute, ShortWait: time.Second, Tick: time.Second},
		}
	}

	require.NoError(t, valid().Validate())
	for _, marker := range []string{"_", "+", "~", "#"} {
		c := valid()
		c.Archive.Marker = marker
		assert.NoError(t, c.Validate(), "marker %q", marker)
	}

	tests := []struct {
		name       string
		mutate     func(c *Config)
		levelError bool
	}{
		{"two levels", func(c *Config) { c.Levels = c.Levels[:2] }, true},
		{"duplicate level", func(c *Config) { c.Levels[2] = c.Levels[0] }, true},
		{"path in level", func(c *Config) { c.Levels[1] = "../x" }, true},
		{"blank level", func(c *Config) { c.Levels[1] = " " }, true},
		{"level contains another", func(c *Config) { c.Levels[0] = "IDR04" }, true},
		{"empty root", func(c *Config) { c.Archive.Root = "" }, false},
		{"empty marker", func(c *Config) { c.Archive.Marker = "" }, false},
		{"dot marker", func(c *Config) { c.Archive.Marker = "." }, false},
		{"letter marker", func(c *Config) { c.Archive.Marker = "I" }, false},
		{"digit marker", func(c *Config) { c.Archive.Marker = "0" }, false},
		{"long marker", func(c *Config) { c.Archive.Marker = "new-" }, false},
		{"space marker", func(c *Config) { c.Archive.Marker = " " }, false},
		{"bad min free", func(c *Config) { c.Archive.MinFree = "lots" }, false},
		{"zero tick", func(c *Config) { c.Poll.Tick = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.levelError, errors.Is(err, ErrInvalidLevels))
		})
	}
}

func TestLogConfig(t *testing.T) {
	c := &Config{Logging: LoggingConfig{
		Level:    "debug",
		Path:     "/tmp/r.log",
		Rotation: RotationConfig{MaxSize: "2MB", MaxAge: 3, MaxBackups: 4, Daily: true},
	}}

	lc, err := c.LogConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, int64(2_000_000), lc.Rotation.MaxSize)
	assert.Equal(t, 4, lc.Rotation.MaxBackups)

	c.Logging.Rotation.MaxSize = "huge"
	_, err = c.LogConfig()
	assert.Error(t, err)
}

func TestDaemonPaths(t *testing.T) {
	c := &Config{}
	assert.Equal(t, filepath.Join(DataDir(), "radarsync.pid"), c.PIDPath())
	assert.Equal(t, filepath.Join(DataDir(), "radarsync.status"), c.StatusPath())
	assert.Equal(t, filepath.Join(DataDir(), "index.db"), c.IndexPath())
	assert.Equal(t, filepath.Join(DataDir(), "history"), c.HistoryPath())

	c.Daemon.PIDPath = "/run/radarsync.pid"
	assert.Equal(t, "/run/radarsync.pid", c.PIDPath())
}

func TestWriteDefault(t *testing.T) {
	home := isolate(t)

	path, err := WriteDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "radarsync", "config.yaml"), path)

	cfg, err := Load(WithFile(path))
	require.NoError(t, err)
	assert.Equal(t, DefaultLevels, cfg.Levels)
	assert.Equal(t, DefaultLongWait, cfg.Poll.LongWait)
	assert.Equal(t, DefaultHistoryRetentionDays, cfg.History.RetentionDays)

	// Existing files are left alone.
	require.NoError(t, os.WriteFile(path, []byte("levels: [A, B, C]\n"), 0o644))
	_, err = WriteDefault()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "levels: [A, B, C]\n", string(data))
}
