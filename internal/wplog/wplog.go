// Package wplog provides the leveled, prefix-forking logger used throughout
// the supervisor, shadow-fd engine, and their supporting packages. Every
// diagnostic goes to stderr with a consistent "component: message" prefix,
// per the error handling design: no log file is owned by the core.
package wplog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level specifies which messages reach the underlying writer.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"error", "warn", "info", "debug"}

func (l Level) String() string {
	if l < LevelError || l > LevelDebug {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel converts a case-insensitive level name to a Level. It returns
// LevelInfo and false if the name is not recognized.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if name == strings.ToLower(s) {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// Logger is a leveled logger with a fixed prefix that can be forked to
// produce a child logger carrying an extended prefix. Components fork a
// logger for each session, worker, or pool they own so log lines can be
// traced back to the owning entity.
type Logger struct {
	prefix string
	level  Level
	out    *log.Logger
}

// New creates a root Logger that writes to os.Stderr.
func New(prefix string, level Level) *Logger {
	return &Logger{
		prefix: prefix,
		level:  level,
		out:    log.New(os.Stderr, "", log.Ldate|log.Ltime),
	}
}

// Fork returns a child Logger whose prefix is this logger's prefix joined
// with the formatted suffix, inheriting the level and output stream.
func (l *Logger) Fork(format string, args ...interface{}) *Logger {
	suffix := fmt.Sprintf(format, args...)
	prefix := suffix
	if l.prefix != "" {
		prefix = l.prefix + ": " + suffix
	}
	return &Logger{prefix: prefix, level: l.level, out: l.out}
}

// Prefix returns this logger's prefix without the trailing separator.
func (l *Logger) Prefix() string {
	return l.prefix
}

// Level returns the minimum level this logger will emit.
func (l *Logger) Level() Level {
	return l.level
}

// SetLevel changes the minimum level this logger will emit.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

func (l *Logger) emit(level Level, msg string) {
	if level > l.level {
		return
	}
	if l.prefix != "" {
		l.out.Printf("%s: %s: %s", level, l.prefix, msg)
	} else {
		l.out.Printf("%s: %s", level, msg)
	}
}

// Errorf logs at LevelError and returns an error carrying the same message,
// prefixed with this logger's component name.
func (l *Logger) Errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	l.emit(LevelError, msg)
	if l.prefix != "" {
		return fmt.Errorf("%s: %s", l.prefix, msg)
	}
	return fmt.Errorf("%s", msg)
}

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, fmt.Sprintf(format, args...))
}

// Infof logs at LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, args...))
}

// Debugf logs at LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, args...))
}

// Fatalf logs at LevelError and then terminates the process. Used only at
// top-level startup failures (socket bind, fork, path-too-long) per the
// error handling design's "fatal at startup" policy.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.emit(LevelError, fmt.Sprintf(format, args...))
	os.Exit(1)
}
