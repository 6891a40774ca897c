// Package logging builds the process logger.
//
// All components log through a *logrus.Logger created here so level and
// format come from one place (config file, SR_LOG_LEVEL, or --log-level).
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Format selects the log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Field names shared by every component.
const (
	FieldRouteID   = "route_id"
	FieldRecordID  = "record_id"
	FieldOperation = "operation"
	FieldSource    = "source"
	FieldSink      = "sink"
	FieldComponent = "component"
)

// New creates a logger writing to stderr.
func New(level, format string) (*logrus.Logger, error) {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	if err := SetLevel(logger, level); err != nil {
		return nil, err
	}

	switch Format(strings.ToLower(format)) {
	case FormatJSON, "":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	default:
		return nil, fmt.Errorf("unknown log format %q (want json or text)", format)
	}

	return logger, nil
}

// SetLevel parses level and applies it. Used on startup and on config reload.
func SetLevel(logger *logrus.Logger, level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	return nil
}

// Discard returns a logger that drops everything. Intended for tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
