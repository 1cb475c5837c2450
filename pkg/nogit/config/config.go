package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/zeebo/xxh3"

	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

// ErrInvalidFolderName is returned when snapshot_folder_name is not a single
// relative path element.
var ErrInvalidFolderName = errors.New("invalid snapshot folder name")

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

// DaemonConfig configures the per-workspace daemon.
type DaemonConfig struct {
	BinaryPath  string `mapstructure:"binary_path"` // Path to nogitd (auto-discovered if empty)
	SocketPath  string `mapstructure:"socket_path"`
	PIDPath     string `mapstructure:"pid_path"`
	DataDir     string `mapstructure:"data_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"` // Empty disables the metrics endpoint
}

// Config represents the application configuration.
type Config struct {
	Workspace       string        `mapstructure:"workspace"`
	Enable          bool          `mapstructure:"enable"`
	IntervalMinutes int           `mapstructure:"snapshot_interval_minutes"`
	MaxSnapshots    int           `mapstructure:"max_snapshots"`
	FolderName      string        `mapstructure:"snapshot_folder_name"`
	Exclude         []string      `mapstructure:"exclude"`
	ExcludePatterns []string      `mapstructure:"exclude_patterns"`
	Logging         LoggingConfig `mapstructure:"logging"`
	Daemon          DaemonConfig  `mapstructure:"daemon"`
}

// Interval returns the capture interval. It is never shorter than a minute.
func (c *Config) Interval() time.Duration {
	return time.Duration(max(1, c.IntervalMinutes)) * time.Minute
}

// Retention returns the maximum number of snapshots to keep (at least 1).
func (c *Config) Retention() int {
	return max(1, c.MaxSnapshots)
}

// Normalize clamps numeric settings, applies the default folder name and
// makes the workspace path absolute.
func (c *Config) Normalize() error {
	c.IntervalMinutes = max(1, c.IntervalMinutes)
	c.MaxSnapshots = max(1, c.MaxSnapshots)

	if c.FolderName == "" {
		c.FolderName = DefaultFolderName
	}
	if c.FolderName == "." || c.FolderName == ".." || strings.ContainsAny(c.FolderName, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidFolderName, c.FolderName)
	}

	if c.Workspace != "" {
		expanded, err := ExpandPath(c.Workspace)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return fmt.Errorf("resolving workspace: %w", err)
		}
		c.Workspace = abs
	}

	return nil
}

// LoggingOptions converts the logging section into a logging.Config.
func (c *Config) LoggingOptions() (logging.Config, error) {
	maxSize, err := logging.ParseMaxSize(c.Logging.Rotation.MaxSize)
	if err != nil {
		return logging.Config{}, err
	}

	return logging.Config{
		Level: c.Logging.Level,
		Path:  c.Logging.Path,
		Rotation: logging.RotationConfig{
			MaxSize:    maxSize,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
		Components: c.Logging.Components,
	}, nil
}

// SocketPath returns the daemon socket for the configured workspace.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return filepath.Join(c.DataDir(), "nogit.sock")
}

// PIDPath returns the daemon PID file for the configured workspace.
func (c *Config) PIDPath() string {
	if c.Daemon.PIDPath != "" {
		return c.Daemon.PIDPath
	}
	return filepath.Join(c.DataDir(), "nogit.pid")
}

// DataDir returns the daemon data directory for the configured workspace.
func (c *Config) DataDir() string {
	if c.Daemon.DataDir != "" {
		return c.Daemon.DataDir
	}
	return WorkspaceDataDir(c.Workspace)
}

// Loader reads configuration through a dedicated viper instance and can
// watch the config file for changes.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader creates a loader. An empty file searches the default locations:
//   - $XDG_CONFIG_HOME/nogit/config.yaml
//   - $HOME/.config/nogit/config.yaml
//
// Environment variables are prefixed with NOGIT_ (e.g. NOGIT_MAX_SNAPSHOTS).
func NewLoader(file string) *Loader {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "nogit"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "nogit"))
		}
	}

	v.SetEnvPrefix("NOGIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace", "")
	v.SetDefault("enable", DefaultEnable)
	v.SetDefault("snapshot_interval_minutes", DefaultIntervalMinutes)
	v.SetDefault("max_snapshots", DefaultMaxSnapshots)
	v.SetDefault("snapshot_folder_name", DefaultFolderName)
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("exclude_patterns", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"daemon":  "info",
		"watcher": "warn",
		"capture": "info",
		"prune":   "info",
	})

	v.SetDefault("daemon.binary_path", "")
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.data_dir", "")
	v.SetDefault("daemon.metrics_addr", "")
}

// Viper exposes the underlying viper instance so commands can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads the config file (a missing file is fine) and decodes it.
// An empty workspace falls back to the current directory.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// decode must be called with l.mu held.
func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.Workspace = wd
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-decoded configuration every time the
// config file changes. It returns false when no config file is in use.
func (l *Loader) Watch(onChange func(*Config, error)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}

	l.v.OnConfigChange(func(_ fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
	return true
}

// Load loads configuration from the default locations and the environment.
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "nogit"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "nogit"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists.
// Returns the path of the config file.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# nogit configuration

# Take periodic snapshots of modified files
enable: %t

# Minutes between periodic snapshots (minimum 1)
snapshot_interval_minutes: %d

# Number of snapshots to keep; the oldest are pruned first
max_snapshots: %d

# Workspace sub-folder that holds the snapshot store
snapshot_folder_name: %s

# Directory names whose contents are never tracked
exclude:
  - .git
  - .hg
  - .svn
  - node_modules
  - dist
  - out

# Glob patterns (relative to the workspace, '/' separated) that are never tracked
exclude_patterns: []

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/nogit/nogit.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    daemon: info
    watcher: warn
    capture: info
    prune: info

# Daemon configuration (empty paths use $XDG_DATA_HOME/nogit/workspaces/<key>/)
daemon:
  binary_path: ""
  socket_path: ""
  pid_path: ""
  data_dir: ""
  # Address for the Prometheus /metrics endpoint, e.g. 127.0.0.1:9464
  metrics_addr: ""
`, DefaultEnable, DefaultIntervalMinutes, DefaultMaxSnapshots, DefaultFolderName)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
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

// DataDir returns $XDG_DATA_HOME/nogit/.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "nogit")
}

// StateDir returns $XDG_STATE_HOME/nogit/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "nogit")
}

// WorkspaceKey returns a stable short key for a workspace root. Socket paths
// are length-limited, so daemon files live under the key rather than the path.
func WorkspaceKey(root string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(filepath.Clean(root)))
}

// WorkspaceDataDir returns the daemon data directory for a workspace root.
func WorkspaceDataDir(root string) string {
	return filepath.Join(DataDir(), "workspaces", WorkspaceKey(root))
}

// DefaultBinaryPath returns nogitd from the standard Go install locations
// (GOBIN, GOPATH/bin, ~/go/bin), or "" when it is not installed there.
func DefaultBinaryPath() string {
	var dirs []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		dirs = append(dirs, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		dirs = append(dirs, filepath.Join(gopath, "bin"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}

	for _, dir := range dirs {
		candidate := filepath.Join(dir, "nogitd")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
