package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface used across cligate.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config selects where and how records are written.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json (default), text
	// Output defaults to os.Stderr. Ignored when File is set.
	Output    io.Writer
	AddSource bool

	// File enables size-rotated file output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Attrs are attached to every record, e.g. service and version.
	Attrs []any
}

// DefaultConfig is JSON at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

// level is shared by every logger so SetLevel applies process-wide.
var level = new(slog.LevelVar)

type slogLogger struct {
	sl  *slog.Logger
	ctx context.Context
}

// New builds a logger. Every string attribute passes through the redactor
// before it is written.
func New(cfg Config) (Logger, error) {
	w, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr { return redactSensitive(a) },
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text", "console":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	sl := slog.New(h)
	if len(cfg.Attrs) > 0 {
		sl = sl.With(cfg.Attrs...)
	}
	return &slogLogger{sl: sl, ctx: context.Background()}, nil
}

func openOutput(cfg Config) (io.Writer, error) {
	if cfg.File == "" {
		if cfg.Output == nil {
			return os.Stderr, nil
		}
		return cfg.Output, nil
	}
	if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0 {
		return nil, fmt.Errorf("log rotation limits must not be negative")
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    positiveOr(cfg.MaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.MaxBackups, 5),
		MaxAge:     positiveOr(cfg.MaxAgeDays, 28),
		Compress:   true,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Nop discards everything.
func Nop() Logger {
	return &slogLogger{sl: slog.New(slog.DiscardHandler), ctx: context.Background()}
}

// SetLevel changes the minimum level of every logger built by New.
func SetLevel(s string) {
	level.Set(parseLevel(s))
}

// GetLevel reports the current minimum level.
func GetLevel() string {
	switch l := level.Level(); {
	case l <= slog.LevelDebug:
		return "debug"
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	}
	return "info"
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (l *slogLogger) log(lvl slog.Level, msg string, args []any) {
	l.sl.Log(l.ctx, lvl, msg, args...)
}

func (l *slogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *slogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *slogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{sl: l.sl.With(args...), ctx: l.ctx}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{sl: l.sl, ctx: ctx}
}

// Slog exposes the underlying *slog.Logger, e.g. for http.Server.ErrorLog.
// Foreign Logger implementations get the default's.
func Slog(l Logger) *slog.Logger {
	if s, ok := l.(*slogLogger); ok {
		return s.sl
	}
	return std.Load().sl
}

var std atomic.Pointer[slogLogger]

func init() {
	l, _ := New(DefaultConfig())
	std.Store(l.(*slogLogger))
}

// SetDefault replaces the process-wide logger. Loggers not built by New
// are ignored.
func SetDefault(l Logger) {
	if s, ok := l.(*slogLogger); ok {
		std.Store(s)
	}
}

// Default returns the process-wide logger.
func Default() Logger {
	return std.Load()
}

func Info(msg string, args ...any)  { std.Load().Info(msg, args...) }
func Warn(msg string, args ...any)  { std.Load().Warn(msg, args...) }
func Error(msg string, args ...any) { std.Load().Error(msg, args...) }
