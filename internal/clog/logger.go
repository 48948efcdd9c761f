package clog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// sink holds the output state shared by a logger and all of its children.
type sink struct {
	mu         sync.Mutex
	level      Level     // minimum level to log
	fileWriter io.Writer // always receives logs at or above level
	errWriter  io.Writer // receives warn/error in CLI mode, nil in daemon mode
	daemonMode bool      // when true, errWriter is ignored
}

// Logger handles leveled logging with support for multiple outputs.
// Loggers derived with With share outputs and level with their parent.
type Logger struct {
	sink   *sink
	fields string // preformatted " key=value" pairs
}

// NewLogger creates a new logger with default settings.
// By default, logs go to stderr at Info level.
func NewLogger() *Logger {
	return &Logger{
		sink: &sink{
			level:     LevelInfo,
			errWriter: os.Stderr,
		},
	}
}

// With returns a child logger that appends the given key/value pairs to
// every line. Keys and values are alternated; a trailing key without a value
// is logged with an empty value.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{
		sink:   l.sink,
		fields: l.fields + formatFields(kv),
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// SetFileOutput sets the file writer for log output.
// Pass nil to disable file logging.
func (l *Logger) SetFileOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.fileWriter = w
}

// SetErrOutput sets the stderr writer for warn/error output in CLI mode.
// Pass nil to disable stderr logging.
func (l *Logger) SetErrOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.errWriter = w
}

// SetDaemonMode enables or disables daemon mode.
// In daemon mode, logs only go to the file writer, not stderr.
func (l *Logger) SetDaemonMode(daemon bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.daemonMode = daemon
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (l *Logger) log(level Level, format string, args ...any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}

	msg := fmt.Sprintf(format, args...) + l.fields
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if s.fileWriter != nil {
		_, _ = fmt.Fprintf(s.fileWriter, "%s [%s] %s\n", timestamp, level, msg)
	}

	// stderr gets the short form, warn and above only
	if !s.daemonMode && s.errWriter != nil && level >= LevelWarn {
		_, _ = fmt.Fprintf(s.errWriter, "[%s] %s\n", level, msg)
	}
}

// formatFields renders alternating key/value pairs as " k=v k=v".
// Values containing spaces or quotes are quoted.
func formatFields(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		val := ""
		if i+1 < len(kv) {
			val = fmt.Sprint(kv[i+1])
		}
		if val == "" || strings.ContainsAny(val, " \t\n\"=") {
			val = fmt.Sprintf("%q", val)
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(val)
	}
	return b.String()
}

// FileOptions controls rotation of the log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int // rotate after this many megabytes; 0 uses lumberjack's default
	MaxBackups int // rotated files to keep; 0 keeps all
	MaxAgeDays int // days to keep rotated files; 0 keeps forever
}

// OpenLogFile returns a rotating writer for the given options, creating the
// parent directory if needed. The returned writer must be closed on shutdown.
func OpenLogFile(opts FileOptions) (io.WriteCloser, error) {
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Touch the file so permission problems surface at startup rather than
	// on the first write.
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	_ = f.Close()

	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		LocalTime:  false,
	}, nil
}

// DefaultLogPath returns the default log file path following XDG conventions.
// Returns ~/.local/state/privd/privd.log
func DefaultLogPath() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, "privd", "privd.log")
}
