package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/radarsync/pkg/radar/logging"
)

// ErrInvalidLevels is returned when the configured zoom levels are not exactly three distinct codes.
var ErrInvalidLevels = errors.New("invalid zoom levels")

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// ArchiveConfig configures the local frame archive.
type ArchiveConfig struct {
	Root         string `mapstructure:"root"`
	ClearOnStart bool   `mapstructure:"clear_on_start"`
	Marker       string `mapstructure:"marker"`
	MinFree      string `mapstructure:"min_free"`
}

// RemoteConfig configures the remote catalog.
type RemoteConfig struct {
	Address       string        `mapstructure:"address"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	FramesDir     string        `mapstructure:"frames_dir"`
	ReferencesDir string        `mapstructure:"references_dir"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Exclude       string        `mapstructure:"exclude"`
}

// PollConfig configures the poll loop intervals.
type PollConfig struct {
	LongWait  time.Duration `mapstructure:"long_wait"`
	ShortWait time.Duration `mapstructure:"short_wait"`
	Tick      time.Duration `mapstructure:"tick"`
}

// RetentionConfig configures pruning.
type RetentionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Trash   bool `mapstructure:"trash"`
}

// ConsumerConfig configures the in-process frame consumer.
type ConsumerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	AutoConfirm bool `mapstructure:"auto_confirm"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // Empty disables the listener
}

// HistoryConfig configures the sync and prune history.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// DaemonConfig configures daemon state files.
type DaemonConfig struct {
	PIDPath    string `mapstructure:"pid_path"`
	StatusPath string `mapstructure:"status_path"`
	IndexPath  string `mapstructure:"index_path"`
}

// Config represents the application configuration.
type Config struct {
	Levels    []string        `mapstructure:"levels"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Poll      PollConfig      `mapstructure:"poll"`
	Retention RetentionConfig `mapstructure:"retention"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	History   HistoryConfig   `mapstructure:"history"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-"`
}

type loadOptions struct {
	file  string
	flags map[string]*pflag.Flag
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithFile reads the given config file instead of searching the default locations.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.file = path }
}

// WithFlag binds a command-line flag to a config key. Nil flags are ignored.
func WithFlag(key string, flag *pflag.Flag) LoadOption {
	return func(o *loadOptions) {
		if flag != nil {
			o.flags[key] = flag
		}
	}
}

// Load loads configuration from file, environment and bound flags.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/radarsync/config.yaml
//   - $HOME/.config/radarsync/config.yaml
//
// Environment variables are prefixed with RADARSYNC_ (e.g., RADARSYNC_POLL_LONG_WAIT).
func Load(opts ...LoadOption) (*Config, error) {
	o := loadOptions{flags: make(map[string]*pflag.Flag)}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()

	if o.file != "" {
		v.SetConfigFile(o.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "radarsync"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "radarsync"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, flag := range o.flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", flag.Name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	root, err := ExpandPath(cfg.Archive.Root)
	if err != nil {
		return nil, err
	}
	cfg.Archive.Root = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("levels", DefaultLevels)

	v.SetDefault("archive.root", filepath.Join(DataDir(), "img"))
	v.SetDefault("archive.clear_on_start", true)
	v.SetDefault("archive.marker", DefaultMarker)
	v.SetDefault("archive.min_free", DefaultMinFree)

	v.SetDefault("remote.address", DefaultRemoteAddress)
	v.SetDefault("remote.user", DefaultRemoteUser)
	v.SetDefault("remote.password", DefaultRemotePassword)
	v.SetDefault("remote.frames_dir", DefaultFramesDir)
	v.SetDefault("remote.references_dir", DefaultReferencesDir)
	v.SetDefault("remote.timeout", DefaultRemoteTimeout)
	v.SetDefault("remote.exclude", DefaultExclude)

	v.SetDefault("poll.long_wait", DefaultLongWait)
	v.SetDefault("poll.short_wait", DefaultShortWait)
	v.SetDefault("poll.tick", DefaultTick)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.trash", false)

	v.SetDefault("consumer.enabled", true)
	v.SetDefault("consumer.auto_confirm", false)

	v.SetDefault("metrics.listen", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means DataDir()/history
	v.SetDefault("history.retention_days", DefaultHistoryRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"daemon":   "info",
		"sync":     "info",
		"prune":    "info",
		"poll":     "info",
		"consumer": "info",
		"watcher":  "warn",
	})

	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.status_path", "")
	v.SetDefault("daemon.index_path", "")
}

// Validate checks invariants that the rest of the program relies on.
func (c *Config) Validate() error {
	if len(c.Levels) != LevelCount {
		return fmt.Errorf("%w: want %d, got %d", ErrInvalidLevels, LevelCount, len(c.Levels))
	}
	seen := make(map[string]bool, len(c.Levels))
	for _, level := range c.Levels {
		if strings.TrimSpace(level) == "" || strings.ContainsAny(level, `/\.`) {
			return fmt.Errorf("%w: %q is not a product code", ErrInvalidLevels, level)
		}
		if seen[level] {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidLevels, level)
		}
		seen[level] = true
	}
	// Listings are matched by substring, so no code may contain another.
	for _, a := range c.Levels {
		for _, b := range c.Levels {
			if a != b && strings.Contains(a, b) {
				return fmt.Errorf("%w: %q contains %q", ErrInvalidLevels, a, b)
			}
		}
	}

	if c.Archive.Root == "" {
		return errors.New("archive.root must not be empty")
	}
	if !validMarker(c.Archive.Marker) {
		return fmt.Errorf("archive.marker %q must be a single punctuation character", c.Archive.Marker)
	}
	if _, err := c.MinFreeBytes(); err != nil {
		return err
	}

	if c.Poll.LongWait <= 0 || c.Poll.ShortWait <= 0 || c.Poll.Tick <= 0 {
		return errors.New("poll intervals must be positive")
	}
	return nil
}

// validMarker reports whether m is one rune that cannot start a product
// code or collide with path and temporary-file syntax.
func validMarker(m string) bool {
	if utf8.RuneCountInString(m) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(m)
	if r == utf8.RuneError || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsControl(r) {
		return false
	}
	return !strings.ContainsRune(`./\`, r)
}

// MinFreeBytes parses archive.min_free. Zero disables the free-space check.
func (c *Config) MinFreeBytes() (uint64, error) {
	s := strings.TrimSpace(c.Archive.MinFree)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("archive.min_free %q: %w", c.Archive.MinFree, err)
	}
	return n, nil
}

// LogConfig converts the logging section into a logging.Config.
func (c *Config) LogConfig() (logging.Config, error) {
	rotation := logging.RotationConfig{
		MaxAge:     c.Logging.Rotation.MaxAge,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		Daily:      c.Logging.Rotation.Daily,
	}
	if c.Logging.Rotation.MaxSize != "" {
		size, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size %q: %w", c.Logging.Rotation.MaxSize, err)
		}
		rotation.MaxSize = int64(size)
	}

	return logging.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.Path,
		Rotation:   rotation,
		Components: c.Logging.Components,
	}, nil
}

// PIDPath returns the configured PID file path or the XDG default.
func (c *Config) PIDPath() string {
	return orDefault(c.Daemon.PIDPath, filepath.Join(DataDir(), "radarsync.pid"))
}

// StatusPath returns the configured status file path or the XDG default.
func (c *Config) StatusPath() string {
	return orDefault(c.Daemon.StatusPath, filepath.Join(DataDir(), "radarsync.status"))
}

// HistoryPath returns the configured history directory or the XDG default.
func (c *Config) HistoryPath() string {
	return orDefault(c.History.Path, filepath.Join(DataDir(), "history"))
}

// IndexPath returns the configured frame index directory or the XDG default.
func (c *Config) IndexPath() string {
	return orDefault(c.Daemon.IndexPath, filepath.Join(DataDir(), "index.db"))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	if expanded, err := ExpandPath(v); err == nil {
		return expanded
	}
	return v
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "radarsync"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "radarsync"), nil
}

// DataDir returns $XDG_DATA_HOME/radarsync/ for the archive, index and daemon files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "radarsync")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// WriteDefault writes a commented default config file if none exists and
// returns its path.
func WriteDefault() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	content := fmt.Sprintf(`# radarsync configuration

# Radar product codes, one per zoom level (exactly three)
levels: [%s]

archive:
  # Local archive root; one subdirectory per level
  root: %s
  # Clear the archive when the daemon starts
  clear_on_start: true
  # Single punctuation character prefixed to frames not yet consumed
  marker: "%s"
  # Stop downloading when less than this much space is free (0 disables)
  min_free: %s

remote:
  address: %s
  user: %s
  password: %s
  frames_dir: %s
  references_dir: %s
  timeout: %s
  # Listing entries containing this substring are ignored
  exclude: "%s"

poll:
  long_wait: %s
  short_wait: %s
  tick: %s

retention:
  enabled: true
  # Move pruned frames to the desktop trash instead of deleting them
  trash: false

consumer:
  enabled: true
  # Confirm new frames as soon as they are reported
  auto_confirm: false

metrics:
  # Address for the Prometheus endpoint, e.g. 127.0.0.1:9464 (empty disables)
  listen: ""

history:
  # Record every pass that downloaded or pruned frames
  enabled: true
  # Empty means the history directory under the data directory
  path: ""
  retention_days: %d

logging:
  level: info
  # Empty means $XDG_STATE_HOME/radarsync/radarsync.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5
    daily: true
  components:
    sync: info
    prune: info
    watcher: warn
`,
		strings.Join(DefaultLevels, ", "), filepath.Join(DataDir(), "img"), DefaultMarker, DefaultMinFree,
		DefaultRemoteAddress, DefaultRemoteUser, DefaultRemotePassword, DefaultFramesDir, DefaultReferencesDir,
		DefaultRemoteTimeout, DefaultExclude, DefaultLongWait, DefaultShortWait, DefaultTick,
		DefaultHistoryRetentionDays)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}
