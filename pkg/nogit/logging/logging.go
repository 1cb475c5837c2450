// Package logging provides component loggers for the nogit CLI and daemon.
// Output goes to a shared rotating file and, optionally, stderr.
//
//	if err := logging.Init(cfg); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	log := logging.Get("capture")
//	log.Info("snapshot saved", "id", id, "files", n)
//
// Loggers may be obtained before Init; they are silent until Init and pick
// up the configured outputs afterwards.
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a log severity.
type Level = log.Level

// Levels from least to most severe.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// ErrInvalidLevel is returned for an unknown level name.
var ErrInvalidLevel = errors.New("invalid log level")

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel parses a level name, case-insensitively. Unknown names return
// LevelInfo and ErrInvalidLevel.
func ParseLevel(s string) (Level, error) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
}

// Config configures the logging system.
type Config struct {
	// Level is the default level (debug, info, warn, error).
	Level string

	// Path is the log file. Empty uses DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components overrides the level per component name.
	Components map[string]string

	// ConsoleLevel also logs to stderr at this level. Empty disables it.
	ConsoleLevel string
}

// outputs are the destinations of one component at one point in time.
type outputs struct {
	file    *log.Logger
	console *log.Logger
}

// Logger logs for one component. Loggers derived with With share the
// outputs of the component logger they came from.
type Logger struct {
	component string
	fields    []any
	root      *Logger
	out       atomic.Pointer[outputs]
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(LevelError, msg, args) }

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger that adds key/value pairs to every entry.
func (l *Logger) With(args ...any) *Logger {
	root := l
	if l.root != nil {
		root = l.root
	}
	return &Logger{
		component: l.component,
		fields:    append(slices.Clip(l.fields), args...),
		root:      root,
	}
}

func (l *Logger) emit(level Level, msg string, args []any) {
	src := l
	if l.root != nil {
		src = l.root
	}
	out := src.out.Load()
	if out == nil {
		return
	}

	if len(l.fields) > 0 {
		args = append(slices.Clip(l.fields), args...)
	}
	out.file.Log(level, msg, args...)
	if out.console != nil {
		out.console.Log(level, msg, args...)
	}
}

// settings is a validated Config.
type settings struct {
	level      Level
	components map[string]Level
	console    bool
	consoleLvl Level
}

func (s *settings) levelFor(component string) Level {
	if lvl, ok := s.components[component]; ok {
		return lvl
	}
	return s.level
}

func parseSettings(cfg Config) (*settings, error) {
	s := &settings{components: make(map[string]Level, len(cfg.Components))}

	var err error
	if s.level, err = ParseLevel(cfg.Level); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	for comp, name := range cfg.Components {
		lvl, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		s.components[comp] = lvl
	}
	if cfg.ConsoleLevel != "" {
		if s.consoleLvl, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return nil, fmt.Errorf("parsing console level: %w", err)
		}
		s.console = true
	}
	return s, nil
}

// registry holds the process-wide logging state.
type registry struct {
	mu       sync.Mutex
	settings *settings
	writer   *RotatingWriter
	loggers  map[string]*Logger
}

var reg = &registry{loggers: make(map[string]*Logger)}

// outputsFor must be called with r.mu held. It returns nil before Init.
func (r *registry) outputsFor(component string) *outputs {
	if r.settings == nil || r.writer == nil {
		return nil
	}

	out := &outputs{
		file: log.NewWithOptions(r.writer, log.Options{
			Level:           r.settings.levelFor(component),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}
	if r.settings.console {
		out.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           r.settings.consoleLvl,
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return out
}

// refresh must be called with r.mu held.
func (r *registry) refresh() {
	for component, l := range r.loggers {
		l.out.Store(r.outputsFor(component))
	}
}

// Init configures logging. It may be called again to reconfigure; existing
// loggers switch to the new outputs. An invalid Config leaves the current
// state untouched.
func Init(cfg Config) error {
	s, err := parseSettings(cfg)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	old := reg.writer
	reg.settings = s
	reg.writer = writer
	reg.refresh()

	if old != nil {
		if err := old.Close(); err != nil {
			return fmt.Errorf("closing previous log file: %w", err)
		}
	}
	return nil
}

// Get returns the logger for a component.
func Get(component string) *Logger {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if l, ok := reg.loggers[component]; ok {
		return l
	}
	l := &Logger{component: component}
	l.out.Store(reg.outputsFor(component))
	reg.loggers[component] = l
	return l
}

// Close closes the log file. Loggers are silent until the next Init.
func Close() error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	w := reg.writer
	reg.settings = nil
	reg.writer = nil
	reg.refresh()

	if w == nil {
		return nil
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/nogit/nogit.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "nogit", "nogit.log")
}

// DefaultConfig returns info-level logging to DefaultLogPath.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
