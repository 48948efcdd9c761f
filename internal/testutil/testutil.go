// Package testutil provides helpers for tests that run a real privd server.
package testutil

import (
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/daemon"
	"github.com/xdg/privd/internal/executor"
	"github.com/xdg/privd/internal/server"
	"github.com/xdg/privd/internal/token"
)

// StartServer starts a server on a free loopback port with default limits
// and a discarding logger, and shuts it down when the test ends. Options
// are applied after the defaults.
func StartServer(t *testing.T, secret string, exec executor.Executor, opts ...server.Option) *server.Server {
	t.Helper()
	return StartServerConfig(t, server.DefaultConfig(), secret, exec, opts...)
}

// StartServerConfig is StartServer with explicit settings. The port is
// always replaced with a free one.
func StartServerConfig(t *testing.T, cfg server.Config, secret string, exec executor.Executor, opts ...server.Option) *server.Server {
	t.Helper()

	cfg.Port = 0
	opts = append([]server.Option{server.WithLogger(clog.TestLogger(io.Discard))}, opts...)

	s := server.New(cfg, token.NewSecret(secret), exec, opts...)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

// UnusedAddr returns a loopback address nothing is listening on.
func UnusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// IsolateState points the config and state directories at fresh temp
// directories and sets a unique instance ID, so tests never see a real
// daemon's files.
func IsolateState(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv(daemon.InstanceIDEnvVar, uuid.NewString()[:8])
}

// RequireShell skips the test if /bin/sh is not available.
func RequireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skipf("/bin/sh not available: %v", err)
	}
}
