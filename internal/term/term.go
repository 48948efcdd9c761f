// Package term writes the privd CLI's user-facing output. Operational
// logging goes through internal/clog instead.
//
// Messages and command output go to stdout and are dropped with --quiet.
// Warnings, errors and a remote command's stderr always reach stderr, so
// a quiet 'privd exec' still reports failures.
package term

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	xterm "golang.org/x/term"
)

// console is the pair of writers the CLI prints to.
type console struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	quiet  bool
}

var std = &console{stdout: os.Stdout, stderr: os.Stderr}

// out runs write against stdout unless quiet.
func (c *console) out(write func(w io.Writer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.quiet {
		write(c.stdout)
	}
}

func (c *console) err(write func(w io.Writer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	write(c.stderr)
}

// SetQuiet drops stdout output when q is true.
func SetQuiet(q bool) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.quiet = q
}

// SetOutput redirects stdout output to w; nil restores os.Stdout.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	std.stdout = w
}

// SetErrOutput redirects stderr output to w; nil restores os.Stderr.
func SetErrOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	std.stderr = w
}

// Reset restores os.Stdout, os.Stderr and non-quiet mode.
func Reset() {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.stdout, std.stderr, std.quiet = os.Stdout, os.Stderr, false
}

// Discard drops all output. For tests.
func Discard() {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.stdout, std.stderr = io.Discard, io.Discard
}

// Printf writes a formatted message to stdout.
func Printf(format string, a ...any) {
	std.out(func(w io.Writer) { _, _ = fmt.Fprintf(w, format, a...) })
}

// Println writes its operands to stdout followed by a newline.
func Println(a ...any) {
	std.out(func(w io.Writer) { _, _ = fmt.Fprintln(w, a...) })
}

// Warn writes "Warning: <msg>" to stderr.
func Warn(format string, a ...any) {
	std.err(func(w io.Writer) { _, _ = fmt.Fprintf(w, "Warning: "+format+"\n", a...) })
}

// Error writes "Error: <msg>" to stderr.
func Error(format string, a ...any) {
	std.err(func(w io.Writer) { _, _ = fmt.Fprintf(w, "Error: "+format+"\n", a...) })
}

// Output writes a remote command's stdout exactly as received. On a
// terminal a missing trailing newline is added so the prompt does not land
// mid-line; pipes get the bytes untouched.
func Output(s string) {
	if s == "" {
		return
	}
	std.out(func(w io.Writer) {
		if IsTerminal(w) && !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		_, _ = io.WriteString(w, s)
	})
}

// ErrOutput writes a remote command's stderr, newline-terminated.
func ErrOutput(s string) {
	std.err(func(w io.Writer) {
		_, _ = io.WriteString(w, strings.TrimSuffix(s, "\n")+"\n")
	})
}

// IsTerminal reports whether w is connected to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && xterm.IsTerminal(int(f.Fd()))
}
