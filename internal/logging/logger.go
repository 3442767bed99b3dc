package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kuhlman-labs/migration-tracker/internal/config"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger bundles the process logger with its runtime level and rotating file
type Logger struct {
	*slog.Logger

	Level *slog.LevelVar
	file  *lumberjack.Logger
}

// NewLogger builds the process logger.
// JSON goes to stdout and the rotating file. Text is tinted on a terminal and
// plain in the file. An empty OutputFile logs to stdout only.
func NewLogger(cfg config.LoggingConfig) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var file *lumberjack.Logger
	if cfg.OutputFile != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
	}

	var handler slog.Handler
	switch {
	case strings.EqualFold(cfg.Format, "json"):
		var w io.Writer = os.Stdout
		if file != nil {
			w = io.MultiWriter(os.Stdout, file)
		}
		handler = slog.NewJSONHandler(w, opts)
	default:
		console := tint.NewHandler(os.Stdout, &tint.Options{
			Level:   level,
			NoColor: !useColors(os.Stdout),
		})
		if file == nil {
			handler = console
		} else {
			handler = NewFanout(console, slog.NewTextHandler(file, opts))
		}
	}

	return &Logger{Logger: slog.New(handler), Level: level, file: file}
}

// Close flushes and closes the log file, if any
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewConsoleLogger logs tinted text to w, for command line tools that keep
// stdout for their own output. Colors are used only when w is a terminal.
func NewConsoleLogger(w io.Writer, level string) *slog.Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = useColors(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:   ParseLevel(level),
		NoColor: !color,
	}))
}

// Discard returns a logger that drops everything, for tests and CLI dry runs
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a config level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func useColors(f *os.File) bool {
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	// https://no-color.org/
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// Fanout sends each record to every enabled handler
type Fanout struct {
	handlers []slog.Handler
}

func NewFanout(handlers ...slog.Handler) *Fanout {
	return &Fanout{handlers: handlers}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: next}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: next}
}
