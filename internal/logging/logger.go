package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger defines a minimal, printf-style logging contract. Packages depend
// on this interface rather than a concrete logger implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

var (
	defaultMu     sync.Mutex
	defaultOutput io.Writer = os.Stderr
	defaultLevel            = LevelInfo
)

// SetDefaultLevel sets the minimum level for component loggers created by
// NewComponentLogger.
func SetDefaultLevel(level Level) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLevel = level
}

// SetDefaultOutput redirects component logger output, primarily for tests.
func SetDefaultOutput(w io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	defaultOutput = w
}

// componentLogger writes leveled, component-tagged lines to the shared output.
type componentLogger struct {
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) log(level Level, levelName, format string, args ...any) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if level < defaultLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(defaultOutput, "[%s] [%s] [%s] %s\n", timestamp, levelName, l.component, message)
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, "DEBUG", format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.log(LevelInfo, "INFO", format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, "WARN", format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.log(LevelError, "ERROR", format, args...)
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if logger == nil {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
