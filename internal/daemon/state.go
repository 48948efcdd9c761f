// Package daemon tracks a running privd daemon through a small state file so
// that later CLI invocations can find, query, and stop it.
package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/xdg/privd/internal/pathutil"
)

// InstanceIDEnvVar selects a separate state file so several daemons (for
// example one per test run) can coexist on one host.
const InstanceIDEnvVar = "PRIVD_INSTANCE_ID"

// State describes a running daemon. It never contains the secret.
type State struct {
	PID     int       `json:"pid"`
	Host    string    `json:"host"`
	Port    int       `json:"port"`
	Started time.Time `json:"started"`
}

// Addr returns the daemon's host:port.
func (s *State) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Dir returns the directory for daemon state files.
// This is $XDG_STATE_HOME/privd, or ~/.local/state/privd.
func Dir() string {
	return pathutil.XDGPath("XDG_STATE_HOME", "~/.local/state", "privd")
}

// Path returns the path to the daemon state file.
// Appends the instance ID suffix when PRIVD_INSTANCE_ID is set.
func Path() string {
	filename := "daemon.json"
	if id := os.Getenv(InstanceIDEnvVar); id != "" {
		filename = "daemon-" + id + ".json"
	}
	return filepath.Join(Dir(), filename)
}

// Save writes the state file with 0600 permissions.
func Save(state *State) error {
	path := Path()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	return nil
}

// Load reads the state file.
// Returns nil if the state file doesn't exist.
func Load() (*State, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// Remove deletes the state file. A missing file is not an error.
func Remove() error {
	if err := os.Remove(Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state: %w", err)
	}
	return nil
}

// IsRunning reports whether the daemon process recorded in state is alive.
func IsRunning(state *State) bool {
	if state == nil || state.PID == 0 {
		return false
	}

	process, err := os.FindProcess(state.PID)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds; signal 0 checks for existence.
	return process.Signal(syscall.Signal(0)) == nil
}

// Stop asks the daemon to shut down gracefully with SIGTERM.
// A process that is already gone is not an error.
func Stop(state *State) error {
	if state == nil || state.PID == 0 {
		return nil
	}

	process, err := os.FindProcess(state.PID)
	if err != nil {
		return nil //nolint:nilerr // process doesn't exist, nothing to stop
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return nil //nolint:nilerr // process already dead, nothing to stop
	}

	return nil
}

// WaitStopped polls until the process in state exits or timeout elapses.
// Returns true if the process is gone.
func WaitStopped(state *State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for IsRunning(state) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return true
}

// CleanupStale removes the state file if its process is no longer running.
// This handles daemons that crashed without cleaning up.
func CleanupStale() error {
	state, err := Load()
	if err != nil {
		return err
	}

	if state != nil && !IsRunning(state) {
		return Remove()
	}

	return nil
}
