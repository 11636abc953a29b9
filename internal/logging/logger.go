// Package logging provides structured console and rotating-file logging.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
)

// Options controls where log output goes.
type Options struct {
	// Console receives human-readable output. nil means os.Stdout.
	Console io.Writer
	// FilePath enables the rotating JSON log when non-empty.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// Logger wraps zerolog with console and file outputs.
type Logger struct {
	zlog    zerolog.Logger
	mode    string // "cli" or "file"
	console io.Writer
	file    *lumberjack.Logger
	output  io.Writer // current output writer
}

// NewLogger creates a new logger for the specified mode.
// In "file" mode console output is suppressed, which keeps an interactive
// shell screen clean while the log file still records everything.
func NewLogger(mode string, opts Options) *Logger {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	l := &Logger{mode: mode, console: console}
	if opts.FilePath != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = constants.LogMaxSizeMB
		}
		backups := opts.MaxBackups
		if backups <= 0 {
			backups = constants.LogMaxBackups
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: backups,
		}
	}
	l.rebuild()
	return l
}

// NewDefaultCLILogger creates a console-only CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger("cli", Options{})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), mode: "cli", console: io.Discard, output: io.Discard}
}

func (l *Logger) rebuild() {
	var writers []io.Writer
	if l.mode != "file" && l.console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        l.console,
			TimeFormat: "15:04:05",
		})
	}
	if l.file != nil {
		writers = append(writers, l.file)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}
	l.output = out
	l.zlog = zerolog.New(out).With().Timestamp().Logger()
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput redirects console output, e.g. through a progress bar writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.console = w
	l.rebuild()
}

// FileOnly returns a copy of the logger that writes only to the log file.
// Used while a remote terminal owns the screen.
func (l *Logger) FileOnly() *Logger {
	c := &Logger{mode: "file", console: l.console, file: l.file}
	c.rebuild()
	return c
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Close flushes and closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when --debug is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// InstallGlobal points the package-level zerolog logger at l, so code that
// logs through zerolog/log lands in the same console and file.
func (l *Logger) InstallGlobal() {
	log.Logger = l.zlog
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
