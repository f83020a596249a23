package connmgr

import (
	"fmt"
	"log/slog"
)

// Level is a log record's severity (spec.md §6).
type Level uint8

const (
	LevelFine Level = iota
	LevelInfo
	LevelWarn
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	default:
		return "fine"
	}
}

// Sink is the pluggable logging capability of spec.md §6 and §9
// ("Polymorphic log sink ... model as a capability"). module tags the
// subsystem that produced the record (e.g. "acquire", "discover",
// "select"). The default Manager sink is NullSink.
type Sink interface {
	Log(module string, level Level, format string, args ...any)
}

// NullSink discards every record. It is the Manager's default sink
// (spec.md §3 "init creates a manager with ... a no-op log sink").
type NullSink struct{}

// Log implements Sink by discarding the record.
func (NullSink) Log(string, Level, string, ...any) {}

// SlogSink adapts a *slog.Logger to the Sink capability, so the core's
// pluggable logging integrates with the rest of the program's structured
// logging instead of requiring a bespoke sink implementation.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger for use as a Manager Sink.
func NewSlogSink(logger *slog.Logger) SlogSink {
	return SlogSink{logger: logger}
}

// Log implements Sink, mapping connmgr's three severities onto slog's.
func (s SlogSink) Log(module string, level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l := s.logger.With(slog.String("module", module))
	switch level {
	case LevelWarn:
		l.Warn(msg)
	case LevelInfo:
		l.Info(msg)
	default:
		l.Debug(msg)
	}
}
