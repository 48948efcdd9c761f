package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xdg/privd/internal/audit"
	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/config"
	"github.com/xdg/privd/internal/daemon"
	"github.com/xdg/privd/internal/term"
	"github.com/xdg/privd/internal/testutil"
)

func TestDaemonStatus_NotRunning(t *testing.T) {
	defer term.Reset()
	testutil.IsolateState(t)

	var out bytes.Buffer
	term.SetOutput(&out)

	err := runDaemonStatus(testCommand(), nil)
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) || exitErr.Code != exitNotRunning {
		t.Fatalf("runDaemonStatus() error = %v, want exit %d", err, exitNotRunning)
	}
	if !strings.Contains(out.String(), "not running") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDaemonStop_CleansStaleState(t *testing.T) {
	defer term.Reset()
	term.Discard()
	testutil.IsolateState(t)

	if err := daemon.Save(&daemon.State{PID: 999999999, Host: "127.0.0.1", Port: 1}); err != nil {
		t.Fatal(err)
	}

	if err := runDaemonStop(testCommand(), nil); err != nil {
		t.Fatalf("runDaemonStop() error = %v", err)
	}
	if st, _ := daemon.Load(); st != nil {
		t.Error("stale state not removed")
	}
}

func TestRunDaemon_MissingToken(t *testing.T) {
	defer clog.Reset()
	defer term.Reset()
	term.Discard()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_STATE_HOME", dir)

	runTokenFile = filepath.Join(dir, "missing-token")
	defer func() { runTokenFile = "" }()

	err := runDaemon(daemonRunCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Errorf("runDaemon() error = %v, want token error", err)
	}
	if st, _ := daemon.Load(); st != nil {
		t.Error("state file written despite startup failure")
	}
}

func TestSetupDaemonLogging(t *testing.T) {
	defer clog.Reset()
	path := filepath.Join(t.TempDir(), "logs", "privd.log")

	cfg := config.Default()
	cfg.Log.File = path
	cfg.Log.Level = "debug"
	if err := setupDaemonLogging(cfg); err != nil {
		t.Fatalf("setupDaemonLogging() error = %v", err)
	}
	clog.Debug("hello from test")
	if err := clog.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[DEBUG] hello from test") {
		t.Errorf("log file = %q", data)
	}
}

func TestOpenAuditLog(t *testing.T) {
	cfg := config.Default()
	l, closeFn, err := openAuditLog(cfg)
	if err != nil || l != nil {
		t.Fatalf("openAuditLog() with no file = %v, %v; want nil, nil", l, err)
	}
	closeFn()

	cfg.Audit.File = filepath.Join(t.TempDir(), "audit", "audit.log")
	l, closeFn, err = openAuditLog(cfg)
	if err != nil {
		t.Fatalf("openAuditLog() error = %v", err)
	}
	if err := l.LogRequest(audit.Origin{Conn: "abcd1234", Remote: "127.0.0.1:1"}, "uptime"); err != nil {
		t.Fatal(err)
	}
	closeFn()

	data, err := os.ReadFile(cfg.Audit.File)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `EXEC REQUEST conn=abcd1234 remote=127.0.0.1:1 cmd="uptime"`) {
		t.Errorf("audit file = %q", data)
	}
}
