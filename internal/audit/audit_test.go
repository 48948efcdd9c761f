package audit

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// Fixed timestamp for deterministic testing
var testTime = time.Date(2024, 1, 15, 14, 32, 5, 0, time.UTC)

var testOrigin = Origin{Conn: "1a2b3c4d", Remote: "127.0.0.1:50312"}

func TestEventFormat(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "request",
			event: Event{Type: EventRequest, Cmd: "uptime"},
			want:  `2024-01-15T14:32:05Z EXEC REQUEST conn=1a2b3c4d remote=127.0.0.1:50312 cmd="uptime"`,
		},
		{
			name:  "unauthorized has empty cmd",
			event: Event{Type: EventDeny, Reason: ReasonUnauthorized},
			want:  `2024-01-15T14:32:05Z EXEC DENY conn=1a2b3c4d remote=127.0.0.1:50312 cmd="" reason="unauthorized"`,
		},
		{
			name:  "blocked with pattern",
			event: Event{Type: EventDeny, Cmd: "sudo mkfs /dev/sda", Reason: ReasonBlocked, Pattern: "mkfs"},
			want:  `2024-01-15T14:32:05Z EXEC DENY conn=1a2b3c4d remote=127.0.0.1:50312 cmd="sudo mkfs /dev/sda" reason="blocked" pattern="mkfs"`,
		},
		{
			name:  "complete",
			event: Event{Type: EventComplete, Cmd: "ls", ExitCode: 2, Duration: 1500 * time.Millisecond},
			want:  `2024-01-15T14:32:05Z EXEC COMPLETE conn=1a2b3c4d remote=127.0.0.1:50312 cmd="ls" exit=2 duration=1.5s`,
		},
		{
			name:  "complete truncated",
			event: Event{Type: EventComplete, Cmd: "yes", Duration: 12 * time.Millisecond, Truncated: true},
			want:  `2024-01-15T14:32:05Z EXEC COMPLETE conn=1a2b3c4d remote=127.0.0.1:50312 cmd="yes" exit=0 duration=12.0ms truncated=true`,
		},
		{
			name:  "timeout",
			event: Event{Type: EventTimeout, Cmd: "sleep 100", Duration: 90 * time.Second},
			want:  `2024-01-15T14:32:05Z EXEC TIMEOUT conn=1a2b3c4d remote=127.0.0.1:50312 cmd="sleep 100" duration=1m30s`,
		},
		{
			name:  "special characters stay on one line",
			event: Event{Type: EventRequest, Cmd: "echo \"a\"\nb"},
			want:  `2024-01-15T14:32:05Z EXEC REQUEST conn=1a2b3c4d remote=127.0.0.1:50312 cmd="echo \"a\"\nb"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			e.Timestamp = testTime
			e.Origin = testOrigin
			if got := e.Format(); got != tt.want {
				t.Errorf("Format() =\n  got:  %q\n  want: %q", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "0.5ms"},
		{250 * time.Millisecond, "250.0ms"},
		{2300 * time.Millisecond, "2.3s"},
		{65 * time.Second, "1m5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLogger_Helpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.now = func() time.Time { return testTime }

	if err := l.LogRequest(testOrigin, "uptime"); err != nil {
		t.Fatal(err)
	}
	if err := l.LogDeny(testOrigin, "mkfs", ReasonBlocked, "mkfs"); err != nil {
		t.Fatal(err)
	}
	if err := l.LogComplete(testOrigin, "uptime", 0, 3*time.Millisecond, false); err != nil {
		t.Fatal(err)
	}
	if err := l.LogTimeout(testOrigin, "sleep 9", 2*time.Second); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	for i, typ := range []EventType{EventRequest, EventDeny, EventComplete, EventTimeout} {
		if !strings.Contains(lines[i], " EXEC "+string(typ)+" ") {
			t.Errorf("line %d = %q, want type %s", i, lines[i], typ)
		}
		if !strings.HasPrefix(lines[i], "2024-01-15T14:32:05Z ") {
			t.Errorf("line %d = %q, want fixed timestamp", i, lines[i])
		}
	}
}

func TestLogger_Nil(t *testing.T) {
	var l *Logger
	if err := l.LogRequest(testOrigin, "uptime"); err != nil {
		t.Errorf("nil logger returned %v", err)
	}
	if err := NewLogger(nil).LogRequest(testOrigin, "uptime"); err != nil {
		t.Errorf("logger with nil writer returned %v", err)
	}
}

type failWriter struct{}

var errDiskFull = errors.New("disk full")

func (failWriter) Write([]byte) (int, error) { return 0, errDiskFull }

func TestLogger_WriteError(t *testing.T) {
	err := NewLogger(failWriter{}).LogRequest(testOrigin, "uptime")
	if !errors.Is(err, errDiskFull) {
		t.Errorf("LogRequest() error = %v, want wrapped errDiskFull", err)
	}
}

func TestLogger_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.LogRequest(testOrigin, "uptime")
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		if !strings.HasSuffix(line, `cmd="uptime"`) {
			t.Errorf("interleaved line %q", line)
		}
	}
}
