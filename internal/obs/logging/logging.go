// Package logging provides the structured, single-line diagnostics the
// kernel emits per spec §7: one stderr line per event carrying tick,
// module, kind and message. Adapted from infrastructure/logging's
// logrus wrapper, trimmed of HTTP-request fields and given tick/module
// context instead of trace/user ids.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fdpkit/fdp/internal/obs/errkind"
)

// Logger wraps logrus.Logger with simulation-scoped fields.
type Logger struct {
	*logrus.Logger
	world string
}

// New creates a Logger for the named world ("instance") at the given
// level ("debug"|"info"|"warn"|"error") and format ("json"|"text").
func New(world, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	l.SetOutput(os.Stderr)

	return &Logger{Logger: l, world: world}
}

// NewFromEnv builds a Logger from FDP_LOG_LEVEL / FDP_LOG_FORMAT,
// defaulting to info/json.
func NewFromEnv(world string) *Logger {
	level := strings.TrimSpace(os.Getenv("FDP_LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("FDP_LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(world, level, format)
}

// Diagnostic emits the single-line per-event diagnostic required by
// spec §7: tick, module, kind, message.
func (l *Logger) Diagnostic(tick int64, module string, kind errkind.Kind, message string) {
	l.Logger.WithFields(logrus.Fields{
		"world":  l.world,
		"tick":   tick,
		"module": module,
		"kind":   string(kind),
	}).Error(message)
}

// DiagnosticErr is Diagnostic for an already-classified *errkind.Error.
func (l *Logger) DiagnosticErr(tick int64, module string, err error) {
	kind := errkind.KindOf(err)
	if kind == "" {
		kind = errkind.Invariant
	}
	l.Diagnostic(tick, module, kind, err.Error())
}

// WithTick returns a logrus entry scoped to the given tick number.
func (l *Logger) WithTick(tick int64) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"world": l.world,
		"tick":  tick,
	})
}

// WithModule returns a logrus entry scoped to the given module name.
func (l *Logger) WithModule(module string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"world":  l.world,
		"module": module,
	})
}
