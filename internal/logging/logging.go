package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes log output. File rotation is only active when File is set.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns stdout JSON logging at info level.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		MaxSizeMB:  50,
		MaxBackups: 4,
		MaxAgeDays: 28,
	}
}

// swapHandler is a slog.Handler whose inner handler can be replaced atomically,
// so the process-wide logger survives runtime reconfiguration.
type swapHandler struct {
	inner atomic.Pointer[slog.Handler]
}

func newSwapHandler(h slog.Handler) *swapHandler {
	s := &swapHandler{}
	s.inner.Store(&h)
	return s
}

func (s *swapHandler) swap(h slog.Handler) {
	s.inner.Store(&h)
}

func (s *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.inner.Load()).Enabled(ctx, level)
}

func (s *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return (*s.inner.Load()).Handle(ctx, r)
}

func (s *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return newSwapHandler((*s.inner.Load()).WithAttrs(attrs))
}

func (s *swapHandler) WithGroup(name string) slog.Handler {
	return newSwapHandler((*s.inner.Load()).WithGroup(name))
}

// Manager owns the process logger and applies runtime changes coming from
// persisted settings. Level changes are instant through the shared LevelVar;
// format changes rebuild the handler.
type Manager struct {
	level   *slog.LevelVar
	handler *swapHandler

	mu   sync.Mutex
	cfg  Config
	file *lumberjack.Logger
}

// New builds a Manager and the root logger from cfg.
func New(cfg Config) (*Manager, *slog.Logger) {
	lvl := &slog.LevelVar{}
	lvl.Set(ParseLevel(cfg.Level))

	m := &Manager{level: lvl, cfg: cfg}
	m.handler = newSwapHandler(m.buildHandler())
	return m, slog.New(m.handler)
}

// SetLevel changes the minimum level without touching the handler.
func (m *Manager) SetLevel(level string) {
	m.level.Set(ParseLevel(level))
	m.mu.Lock()
	m.cfg.Level = level
	m.mu.Unlock()
}

// Reconfigure applies a level and format coming from settings. The output
// destination is fixed at startup and is not changed here.
func (m *Manager) Reconfigure(level, format string) {
	m.level.Set(ParseLevel(level))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Level = level
	if format != m.cfg.Format && ValidFormat(format) {
		m.cfg.Format = format
		m.handler.swap(m.buildHandler())
	}
}

// Close releases the rotating file writer, if one is active.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// buildHandler creates the concrete handler for the current config.
// Caller holds m.mu or is the constructor.
func (m *Manager) buildHandler() slog.Handler {
	var w io.Writer = os.Stdout
	if m.cfg.File != "" {
		if m.file == nil {
			m.file = &lumberjack.Logger{
				Filename:   m.cfg.File,
				MaxSize:    orDefault(m.cfg.MaxSizeMB, 50),
				MaxBackups: orDefault(m.cfg.MaxBackups, 4),
				MaxAge:     orDefault(m.cfg.MaxAgeDays, 28),
				Compress:   m.cfg.Compress,
			}
		}
		w = io.MultiWriter(os.Stdout, m.file)
	}

	opts := &slog.HandlerOptions{Level: m.level}
	if m.cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps a setting string to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelName is the inverse of ParseLevel.
func LevelName(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ValidLevel reports whether s names a supported log level.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat reports whether s names a supported log format.
func ValidFormat(s string) bool {
	switch s {
	case "json", "text":
		return true
	}
	return false
}
