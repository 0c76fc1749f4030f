// Package log provides the process logger, a logrus-backed Logger with
// pattern, text and json formatting and optional rotated file output.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/pktcraft/internal/config"
)

type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
}

const (
	defaultPattern    = "%time [%level] %field %msg"
	defaultTimeFormat = "2006-01-02 15:04:05.000"
)

var (
	mu     sync.RWMutex
	logger Logger = newDefault()
)

// newDefault logs info and above to stderr until Init runs.
func newDefault() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&patternFormatter{pattern: defaultPattern, time: defaultTimeFormat})
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns the global logger tagged with a component prefix.
func Named(component string) Logger {
	return GetLogger().WithField(prefixField, component)
}

// SetLogger replaces the global logger.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Init builds the global logger from configuration. Console output goes to
// stderr so command output on stdout stays machine readable.
func Init(cfg config.LogConfig) error {
	l, err := New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// New builds a Logger writing to console and, when enabled, a rotated file.
func New(cfg config.LogConfig, console io.Writer) (Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	formatter, err := newFormatter(cfg)
	if err != nil {
		return nil, err
	}

	out := NewMultiWriter().Add(console)
	if cfg.Outputs.File.Enabled {
		w, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file output: %w", err)
		}
		out.Add(w)
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(formatter)
	l.SetOutput(out)
	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

func newFormatter(cfg config.LogConfig) (logrus.Formatter, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}
	switch strings.ToLower(cfg.Format) {
	case "", "pattern":
		pattern := cfg.Pattern
		if pattern == "" {
			pattern = defaultPattern
		}
		return &patternFormatter{pattern: pattern, time: timeFormat}, nil
	case "text":
		return &prefixed.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timeFormat,
			ForceFormatting: true,
		}, nil
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: timeFormat}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be pattern, text or json)", cfg.Format)
	}
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.FileOutputConfig) (io.Writer, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}, nil
}
