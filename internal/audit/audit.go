// Package audit records one line per privd request for later review.
// Entries use a key=value format suitable for grep and log shippers.
package audit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventType identifies what happened to a request.
type EventType string

// Event types.
const (
	EventRequest  EventType = "REQUEST"
	EventDeny     EventType = "DENY"
	EventComplete EventType = "COMPLETE"
	EventTimeout  EventType = "TIMEOUT"
)

// Deny reasons.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonBlocked      = "blocked"
	ReasonTooLong      = "too_long"
	ReasonBusy         = "busy"
	ReasonShuttingDown = "shutting_down"
)

// Origin identifies the connection a request arrived on.
type Origin struct {
	Conn   string // short connection id, also used in the daemon log
	Remote string
}

// Event is a single audit log entry.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Origin    Origin

	// Cmd is the trimmed command line. Empty for unauthorized requests,
	// whose command is never read.
	Cmd string

	// Pattern is the denylist entry that matched (DENY with reason blocked).
	Pattern string

	// Reason is why the request was refused (DENY).
	Reason string

	// ExitCode, Duration and Truncated describe a finished command
	// (COMPLETE, TIMEOUT).
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Format returns the log entry as a single line without a terminator.
// Format: 2024-01-15T14:32:05Z EXEC REQUEST conn=1a2b3c4d remote=127.0.0.1:50312 cmd="uptime"
func (e *Event) Format() string {
	var b strings.Builder

	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" EXEC ")
	b.WriteString(string(e.Type))

	b.WriteString(" conn=")
	b.WriteString(e.Origin.Conn)
	b.WriteString(" remote=")
	b.WriteString(e.Origin.Remote)
	b.WriteString(" cmd=")
	b.WriteString(quoteValue(e.Cmd))

	switch e.Type {
	case EventDeny:
		writeOptionalField(&b, "reason", e.Reason)
		writeOptionalField(&b, "pattern", e.Pattern)
	case EventComplete:
		b.WriteString(" exit=")
		b.WriteString(strconv.Itoa(e.ExitCode))
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
		if e.Truncated {
			b.WriteString(" truncated=true")
		}
	case EventTimeout:
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	}

	return b.String()
}

// writeOptionalField appends " key=quoted_value" if value is non-empty.
func writeOptionalField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(quoteValue(value))
}

// quoteValue always quotes so that commands with spaces, quotes or newlines
// stay on one line.
func quoteValue(s string) string {
	return strconv.Quote(s)
}

// formatDuration formats a duration as a short human-readable string
// (e.g. "12.0ms", "2.3s", "1m30s").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Logger writes audit events to an io.Writer. A nil *Logger discards
// everything.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewLogger creates an audit logger that writes to w.
func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// Log writes an event to the audit log. A zero Timestamp is set to the
// current time.
func (l *Logger) Log(e *Event) error {
	if l == nil || l.w == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if _, err := io.WriteString(l.w, e.Format()+"\n"); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogRequest logs an authenticated command about to be executed.
func (l *Logger) LogRequest(o Origin, cmd string) error {
	return l.Log(&Event{Type: EventRequest, Origin: o, Cmd: cmd})
}

// LogDeny logs a refused request. pattern is only set for blocked commands.
func (l *Logger) LogDeny(o Origin, cmd, reason, pattern string) error {
	return l.Log(&Event{Type: EventDeny, Origin: o, Cmd: cmd, Reason: reason, Pattern: pattern})
}

// LogComplete logs a command that ran to completion or failed to start.
func (l *Logger) LogComplete(o Origin, cmd string, exitCode int, d time.Duration, truncated bool) error {
	return l.Log(&Event{
		Type:      EventComplete,
		Origin:    o,
		Cmd:       cmd,
		ExitCode:  exitCode,
		Duration:  d,
		Truncated: truncated,
	})
}

// LogTimeout logs a command killed for exceeding its time limit.
func (l *Logger) LogTimeout(o Origin, cmd string, d time.Duration) error {
	return l.Log(&Event{Type: EventTimeout, Origin: o, Cmd: cmd, Duration: d})
}
