package term

import (
	"bytes"
	"os"
	"testing"
)

// capture redirects both streams for the duration of the test.
func capture(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	SetOutput(stdout)
	SetErrOutput(stderr)
	t.Cleanup(Reset)
	return stdout, stderr
}

func TestOutputFunctions(t *testing.T) {
	tests := []struct {
		name       string
		write      func()
		wantStdout string
		wantStderr string
	}{
		{"Printf", func() { Printf("listening on %s", "127.0.0.1:18522") }, "listening on 127.0.0.1:18522", ""},
		{"Println", func() { Println("pid:", 42) }, "pid: 42\n", ""},
		{"Warn", func() { Warn("daemon (pid %d) still running", 7) }, "", "Warning: daemon (pid 7) still running\n"},
		{"Error", func() { Error("failed: %v", "boom") }, "", "Error: failed: boom\n"},
		{"Error keeps percent in args", func() { Error("%s", "100%") }, "", "Error: 100%\n"},
		// A buffer is not a terminal, so command output passes through.
		{"Output unterminated", func() { Output("hi") }, "hi", ""},
		{"Output terminated", func() { Output("hi\n") }, "hi\n", ""},
		{"Output empty", func() { Output("") }, "", ""},
		{"ErrOutput adds newline", func() { ErrOutput("Command blocked for safety") }, "", "Command blocked for safety\n"},
		{"ErrOutput keeps single newline", func() { ErrOutput("oops\n") }, "", "oops\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := capture(t)
			tt.write()
			if stdout.String() != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.wantStdout)
			}
			if stderr.String() != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestQuiet(t *testing.T) {
	stdout, stderr := capture(t)
	SetQuiet(true)

	Printf("a")
	Println("b")
	Output("c")
	Warn("w")
	Error("e")
	ErrOutput("remote")

	if stdout.Len() != 0 {
		t.Errorf("quiet stdout = %q, want empty", stdout.String())
	}
	if want := "Warning: w\nError: e\nremote\n"; stderr.String() != want {
		t.Errorf("quiet stderr = %q, want %q", stderr.String(), want)
	}
}

func TestReset(t *testing.T) {
	stdout, _ := capture(t)
	SetQuiet(true)
	Reset()

	SetOutput(stdout)
	Println("visible")
	if stdout.String() != "visible\n" {
		t.Errorf("after Reset stdout = %q; quiet mode not cleared", stdout.String())
	}
}

func TestSetOutput_NilRestoresDefaults(t *testing.T) {
	t.Cleanup(Reset)
	SetOutput(nil)
	SetErrOutput(nil)
	if std.stdout != os.Stdout || std.stderr != os.Stderr {
		t.Error("nil writer did not restore os.Stdout/os.Stderr")
	}
}

func TestDiscard(t *testing.T) {
	t.Cleanup(Reset)
	Discard()
	Println("dropped")
	Error("dropped")
}

func TestIsTerminal_NotFile(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("IsTerminal(buffer) = true")
	}
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("IsTerminal(regular file) = true")
	}
}
