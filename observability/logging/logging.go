// Package logging configures the structured JSON logger used across the
// engine and its surrounding binaries, adapted from the teacher lineage's
// observability/logging.Setup.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup configures slog to emit structured JSON with renamed well-known
// attributes (time->timestamp, level->severity, msg->message), installs it
// as the process default, and bridges the stdlib log package onto the same
// handler so any remaining log.Printf call lands in the same stream.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	withArgs := make([]any, len(attrs))
	for i, a := range attrs {
		withArgs[i] = a
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
