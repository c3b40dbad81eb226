package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hearthlabs/hearthsync/internal/infrastructure/config"
)

// Logger is the structured logger handed to every subsystem. It embeds
// *slog.Logger, so call sites use the slog API directly; the wrapper pins
// the service/version fields and the component convention.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from the logging section of config.yaml.
func New(cfg config.LoggingConfig, version string) *Logger {
	return build(cfg, version, destination(cfg.Output))
}

// Default is the bootstrap logger used before configuration is loaded:
// JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// build assembles the handler chain onto w. Split from New so tests can
// capture output.
func build(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: level(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "hearthsync"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// destination maps the configured output name to a writer. Anything
// unrecognised falls back to stdout.
func destination(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// level parses a configured level name; unrecognised names mean info.
func level(name string) slog.Level {
	switch strings.ToLower(name) {
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

// With returns a child logger carrying extra default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged for one subsystem, e.g.
// Component("sync") or Component("api"). Every subsystem logger in the
// daemon goes through this, so log lines are filterable by component.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}
