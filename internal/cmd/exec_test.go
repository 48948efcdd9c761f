package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/executor"
	"github.com/xdg/privd/internal/term"
	"github.com/xdg/privd/internal/testutil"
	"github.com/xdg/privd/internal/token"
)

const cliSecret = "c0ffeec0ffeec0ffeec0ffeec0ffeec0"

// setupDaemon starts a real server on a free port and points the client
// flags at it. Output written through term is returned in the buffers.
func setupDaemon(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	testutil.RequireShell(t)
	testutil.IsolateState(t)

	tokenPath := filepath.Join(t.TempDir(), "token")
	if err := token.Write(tokenPath, cliSecret, false); err != nil {
		t.Fatal(err)
	}

	exec := executor.NewShellExecutor(executor.WithTimeout(5 * time.Second))
	s := testutil.StartServer(t, cliSecret, exec)

	clientAddr = s.Addr().String()
	clientTokenFile = tokenPath
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	term.SetOutput(stdout)
	term.SetErrOutput(stderr)

	t.Cleanup(func() {
		clientAddr = ""
		clientTokenFile = ""
		term.Reset()
	})
	return stdout, stderr
}

func testCommand() *cobra.Command {
	c := &cobra.Command{}
	c.SetContext(context.Background())
	return c
}

func TestExec_Output(t *testing.T) {
	stdout, stderr := setupDaemon(t)

	if err := runExec(testCommand(), []string{"echo", "hello", "world"}); err != nil {
		t.Fatalf("runExec() error = %v", err)
	}
	if stdout.String() != "hello world" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "hello world")
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr = %q, want empty", stderr.String())
	}
}

func TestExec_MirrorsExitCode(t *testing.T) {
	_, stderr := setupDaemon(t)

	err := runExec(testCommand(), []string{"exit 3"})
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("runExec() error = %v, want exit code 3", err)
	}
	if stderr.String() != "Command failed with no output\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestExec_Blocked(t *testing.T) {
	_, stderr := setupDaemon(t)

	err := runExec(testCommand(), []string{"mkfs", "/dev/null"})
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("runExec() error = %v, want exit code 1", err)
	}
	if stderr.String() != "Command blocked for safety\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestExec_WrongToken(t *testing.T) {
	_, stderr := setupDaemon(t)

	bad := filepath.Join(t.TempDir(), "bad")
	if err := os.WriteFile(bad, []byte("nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	clientTokenFile = bad

	err := runExec(testCommand(), []string{"echo", "hi"})
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) || exitErr.Code != 126 {
		t.Fatalf("runExec() error = %v, want exit code 126", err)
	}
	if stderr.String() != "Error: Unauthorized\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestExec_DaemonDown(t *testing.T) {
	_, stderr := setupDaemon(t)

	clientAddr = testutil.UnusedAddr(t)

	err := runExec(testCommand(), []string{"echo", "hi"})
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) || exitErr.Code != 255 {
		t.Fatalf("runExec() error = %v, want exit code 255", err)
	}
	if !bytes.Contains(stderr.Bytes(), []byte("not running")) {
		t.Errorf("stderr = %q, want not running hint", stderr.String())
	}
}

func TestExec_MissingToken(t *testing.T) {
	setupDaemon(t)
	clientTokenFile = filepath.Join(t.TempDir(), "missing")

	err := runExec(testCommand(), []string{"echo", "hi"})
	if !errors.Is(err, token.ErrNotFound) {
		t.Errorf("runExec() error = %v, want ErrNotFound", err)
	}
}

func TestPingAndStatus(t *testing.T) {
	stdout, _ := setupDaemon(t)

	if err := pingCmd.RunE(testCommand(), nil); err != nil {
		t.Fatalf("ping error = %v", err)
	}
	if stdout.String() != "pong\n" {
		t.Errorf("ping output = %q", stdout.String())
	}

	stdout.Reset()
	if err := statusCmd.RunE(testCommand(), nil); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !bytes.HasPrefix(stdout.Bytes(), []byte("active: 1\nuptime: ")) {
		t.Errorf("status output = %q", stdout.String())
	}
}
