// Package logging
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured logging for sockwire on top of logrus. Library code logs
// through Logger(); the command front end reconfigures it with Init.

package logging

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogFields is an alias for the field map of the underlying logger.
type LogFields = logrus.Fields

// ContextLogger adds component scoping to the underlying logger.
type ContextLogger struct {
	*logrus.Logger
}

// Component returns an entry tagged with the emitting component.
func (l *ContextLogger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Config selects level, destination and encoding.
type Config struct {
	Level  string
	File   string
	Format string // "text" or "json"
}

var current atomic.Pointer[ContextLogger]

func init() {
	current.Store(&ContextLogger{
		&logrus.Logger{
			Out:       os.Stderr,
			Formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.WarnLevel,
		},
	})
}

// Logger returns the process-wide logger.
func Logger() *ContextLogger {
	return current.Load()
}

// Init replaces the process-wide logger according to cfg. The returned
// closer releases the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	level := logrus.WarnLevel
	if cfg.Level != "" {
		var err error
		level, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		out, closer = f, f
	}

	var formatter logrus.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		closer.Close()
		return nil, fmt.Errorf("log format %q: want text or json", cfg.Format)
	}

	current.Store(&ContextLogger{
		&logrus.Logger{
			Out:       out,
			Formatter: formatter,
			Hooks:     make(logrus.LevelHooks),
			Level:     level,
		},
	})
	return closer, nil
}

// SetOutput redirects the current logger, mainly for tests.
func SetOutput(w io.Writer) {
	Logger().SetOutput(w)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
