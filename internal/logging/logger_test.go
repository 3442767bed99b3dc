package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"default level", "invalid", slog.LevelInfo},
		{"empty level", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.level)
			if got != tt.expected {
				t.Errorf("ParseLevel(%s) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.log")

	logger := NewLogger(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		OutputFile: path,
		MaxSize:    10,
		MaxBackups: 2,
		MaxAge:     7,
	})
	defer logger.Close()

	logger.Info("sync started", "enterprise", "acme")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `"msg":"sync started"`) {
		t.Errorf("Expected JSON log format, got: %s", string(content))
	}
	if !strings.Contains(string(content), `"enterprise":"acme"`) {
		t.Errorf("Expected enterprise attribute, got: %s", string(content))
	}
}

func TestNewLogger_TextFormatRuntimeLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.log")

	logger := NewLogger(config.LoggingConfig{
		Level:      "info",
		Format:     "text",
		OutputFile: path,
		MaxSize:    10,
	})
	defer logger.Close()

	logger.Debug("hidden page fetched")
	logger.Level.Set(slog.LevelDebug)
	logger.Debug("visible page fetched")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(content), "hidden page fetched") {
		t.Errorf("debug record written while level was info: %s", string(content))
	}
	if !strings.Contains(string(content), "visible page fetched") {
		t.Errorf("Expected debug record after level change, got: %s", string(content))
	}
}

func TestNewLogger_NoFile(t *testing.T) {
	logger := NewLogger(config.LoggingConfig{Level: "info", Format: "text"})
	if logger == nil || logger.Logger == nil {
		t.Fatal("NewLogger() returned nil")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() without file = %v", err)
	}
}

type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }
func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h failingHandler) WithGroup(string) slog.Handler           { return h }

func TestFanout(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	info := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	fanout := NewFanout(info, debug)
	ctx := context.Background()

	if !fanout.Enabled(ctx, slog.LevelDebug) {
		t.Error("Enabled(debug) = false, want true when any handler accepts debug")
	}

	if err := fanout.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelDebug, "page 3", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if infoBuf.Len() != 0 {
		t.Error("info handler received a debug record")
	}
	if debugBuf.Len() == 0 {
		t.Error("debug handler buffer is empty")
	}

	grouped := fanout.WithGroup("sync").WithAttrs([]slog.Attr{slog.String("org", "octo")})
	if err := grouped.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "done", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.Contains(infoBuf.String(), "sync.org=octo") {
		t.Errorf("expected grouped attribute, got: %s", infoBuf.String())
	}
}

func TestFanout_JoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	fanout := NewFanout(failingHandler{}, slog.NewTextHandler(&buf, nil))

	err := fanout.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Handle() error = %v, want disk full", err)
	}
	if buf.Len() == 0 {
		t.Error("healthy handler should still receive the record")
	}
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cl := CronLogger(l)
	cl.Info("wake", "now", "x")
	if buf.Len() != 0 {
		t.Errorf("cron info should be demoted to debug, got: %s", buf.String())
	}

	cl.Error(errors.New("boom"), "panic", "entry", 1)
	out := buf.String()
	if !strings.Contains(out, "error=boom") || !strings.Contains(out, "component=cron") {
		t.Errorf("unexpected cron error output: %s", out)
	}
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "org", "octo")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "org=octo") {
		t.Errorf("Expected warn record with attribute, got: %s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("Expected no color codes for a buffer, got: %q", out)
	}
}
