package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger
type Logger struct {
	logger zerolog.Logger
}

// Options controls logger initialization
type Options struct {
	// Level is a zerolog level name ("debug", "info", ...)
	Level string
	// Dir is the directory for the per-run log file; empty disables file output
	Dir string
	// RunID tags every event and names the run log file
	RunID string
}

var (
	// Default is the default logger instance
	Default *Logger

	logFile *os.File
)

// Init initializes the logger: console output plus one log file per run,
// mirrored through a MultiLevelWriter. Returns the log file path ("" when
// file output is disabled).
func Init(opts Options) (string, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	var writer zerolog.LevelWriter = zerolog.MultiLevelWriter(console)
	path := ""
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create log directory: %w", err)
		}
		name := fmt.Sprintf("run_%s_%s.log", time.Now().Format("20060102-150405"), opts.RunID)
		path = filepath.Join(opts.Dir, name)
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return "", fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(console, logFile)
	}

	logger := zerolog.New(writer).With().
		Timestamp().
		Str("run_id", opts.RunID).
		Logger()

	Default = &Logger{logger: logger}

	Default.Info().
		Str("level", level.String()).
		Str("log_file", path).
		Msg("Logger initialized")

	return path, nil
}

// Close flushes and closes the run log file
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Raw returns the underlying zerolog.Logger
func (l *Logger) Raw() zerolog.Logger {
	return l.logger
}

// Debug returns a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info returns an info event
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn returns a warn event
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error returns an error event
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal returns a fatal event
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// ForComponent creates a logger tagged with a component name
func ForComponent(name string) *Logger {
	if Default == nil {
		Init(Options{})
	}
	return Default.WithField("component", name)
}
