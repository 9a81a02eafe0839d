// Package logger sets up JSON structured logging and adapts it to the
// printf style logger used by the auth package.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	auth "github.com/goliatone/go-clinic-auth"
)

// ParseLevel maps debug, info, warn and error to slog levels. Unknown
// values fall back to info.
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

// Setup returns a JSON slog.Logger writing to w
func Setup(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// SetupDefault installs the JSON logger as the process default
func SetupDefault(w io.Writer, level string) *slog.Logger {
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}

// Adapter implements auth.Logger on top of slog
type Adapter struct {
	logger *slog.Logger
}

var _ auth.Logger = (*Adapter)(nil)

// NewAdapter wraps logger. A nil logger uses slog.Default.
func NewAdapter(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger}
}

// With returns an adapter that adds attrs to every record
func (a *Adapter) With(args ...any) *Adapter {
	return &Adapter{logger: a.logger.With(args...)}
}

// Slog exposes the wrapped logger
func (a *Adapter) Slog() *slog.Logger {
	return a.logger
}

func (a *Adapter) Debug(format string, args ...any) {
	a.log(slog.LevelDebug, format, args...)
}

func (a *Adapter) Info(format string, args ...any) {
	a.log(slog.LevelInfo, format, args...)
}

func (a *Adapter) Warn(format string, args ...any) {
	a.log(slog.LevelWarn, format, args...)
}

func (a *Adapter) Error(format string, args ...any) {
	a.log(slog.LevelError, format, args...)
}

func (a *Adapter) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	a.logger.Log(ctx, level, msg)
}
