// Package telemetry builds the structured logger shared by every udo command.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/basket/udo/internal/shared"
)

// LogFileName is the JSONL log written under <home>/logs.
const LogFileName = "system.jsonl"

// NewLogger appends JSON records to <homeDir>/logs/system.jsonl and, unless
// quiet, mirrors them to stderr. Closing the returned closer closes the file.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	file, err := openLog(filepath.Join(homeDir, "logs"))
	if err != nil {
		return nil, nil, err
	}
	var out io.Writer = file
	if !quiet {
		out = io.MultiWriter(os.Stderr, file)
	}
	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: scrub,
	})
	return slog.New(h).With("component", "udo", "trace_id", "-"), file, nil
}

func openLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// scrub renames the time key and masks credentials, by key name first and
// then by value content.
func scrub(_ []string, a slog.Attr) slog.Attr {
	switch {
	case a.Key == slog.TimeKey:
		a.Key = "timestamp"
		return a
	case shared.IsSensitiveKey(a.Key):
		return slog.String(a.Key, shared.Redacted)
	case a.Value.Kind() != slog.KindString:
		return a
	}
	v := a.Value.String()
	lower := strings.ToLower(v)
	if strings.Contains(lower, "authorization:") || strings.Contains(lower, "bearer ") {
		return slog.String(a.Key, shared.Redacted)
	}
	if masked := shared.Redact(v); masked != v {
		return slog.String(a.Key, masked)
	}
	return a
}

// ParseLevel maps a config level name onto a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
