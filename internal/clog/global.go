package clog

import (
	"io"
	"log"
	"os"
)

// std is the global logger instance used by package-level functions.
var std = NewLogger()

// Options configures the global logger.
type Options struct {
	// File enables rotating file output when File.Path is non-empty.
	File FileOptions
	// Level is the minimum level to log.
	Level Level
	// Daemon disables stderr output.
	Daemon bool
}

// Configure sets up the global logger.
// If opts.File.Path is empty, file logging is disabled.
func Configure(opts Options) error {
	std.SetLevel(opts.Level)
	std.SetDaemonMode(opts.Daemon)

	if opts.File.Path != "" {
		w, err := OpenLogFile(opts.File)
		if err != nil {
			return err
		}
		std.SetFileOutput(w)
	}

	return nil
}

// SetLevel sets the minimum log level for the global logger.
func SetLevel(level Level) {
	std.SetLevel(level)
}

// SetFileOutput sets the file writer for the global logger.
func SetFileOutput(w io.Writer) {
	std.SetFileOutput(w)
}

// SetErrOutput sets the stderr writer for the global logger.
func SetErrOutput(w io.Writer) {
	std.SetErrOutput(w)
}

// SetDaemonMode enables or disables daemon mode for the global logger.
func SetDaemonMode(daemon bool) {
	std.SetDaemonMode(daemon)
}

// With returns a child of the global logger carrying the given fields.
func With(kv ...any) *Logger {
	return std.With(kv...)
}

// Default returns the global logger.
func Default() *Logger {
	return std
}

// Debug logs a debug message using the global logger.
func Debug(format string, args ...any) {
	std.Debug(format, args...)
}

// Info logs an informational message using the global logger.
func Info(format string, args ...any) {
	std.Info(format, args...)
}

// Warn logs a warning message using the global logger.
func Warn(format string, args ...any) {
	std.Warn(format, args...)
}

// Error logs an error message using the global logger.
func Error(format string, args ...any) {
	std.Error(format, args...)
}

// Close closes the file writer if it implements io.Closer.
// Call during shutdown so rotated files are flushed.
func Close() error {
	std.sink.mu.Lock()
	defer std.sink.mu.Unlock()

	if closer, ok := std.sink.fileWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Reset resets the global logger to default state.
func Reset() {
	std = NewLogger()
}

// Discard configures the global logger to discard all output.
func Discard() {
	std.SetFileOutput(io.Discard)
	std.SetErrOutput(io.Discard)
}

// TestLogger returns a debug-level logger that writes to w.
func TestLogger(w io.Writer) *Logger {
	l := NewLogger()
	l.SetFileOutput(w)
	l.SetErrOutput(nil)
	l.SetLevel(LevelDebug)
	return l
}

// ReplaceGlobal replaces the global logger and returns the previous one.
// Caller should restore the original logger after the test.
func ReplaceGlobal(l *Logger) *Logger {
	old := std
	std = l
	return old
}

// RedirectStdLog routes the standard library's log package through clog at
// the given level. Libraries that log via log.Printf end up in the same file.
func RedirectStdLog(level Level) {
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(Writer(level))
}

// Writer returns an io.Writer that writes to clog at the specified level.
func Writer(level Level) io.Writer {
	return &levelWriter{level: level}
}

type levelWriter struct {
	level Level
}

func (w *levelWriter) Write(p []byte) (n int, err error) {
	msg := string(p)
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	std.log(w.level, "%s", msg)
	return len(p), nil
}

func init() {
	// No file logging until Configure is called
	std.SetErrOutput(os.Stderr)
}
