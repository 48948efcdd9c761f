// Package executor runs shell commands on behalf of authenticated clients
// and turns each run into a single response text.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Executor executes commands on the host system.
//
// Implementations must not leave child processes running when Execute
// returns, and must honour ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req Request) Result
}

// Request is a validated command line.
type Request struct {
	Command string
	// Timeout overrides the executor's default when positive.
	Timeout time.Duration
}

// Outcome classifies how a command request ended.
type Outcome string

// Outcome values. Blocked and Busy are decided before an executor is
// involved but share the type so callers can count every result uniformly.
const (
	OutcomeOutput   Outcome = "output"
	OutcomeNoOutput Outcome = "no_output"
	OutcomeFailed   Outcome = "nonzero_exit"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeBusy     Outcome = "busy"
	OutcomeError    Outcome = "error"
)

// TimeoutExitCode is reported for commands killed after exceeding their
// timeout, matching timeout(1).
const TimeoutExitCode = 124

// TruncationMarker is appended to output cut off at the size cap.
const TruncationMarker = "\n[output truncated]"

// Result is the outcome of one command run.
type Result struct {
	Outcome Outcome
	// Text is the response payload sent to the client.
	Text string
	// ExitCode is the process exit code, -1 when unavailable.
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

func timedOut(timeout time.Duration, elapsed time.Duration) Result {
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	return Result{
		Outcome:  OutcomeTimeout,
		Text:     fmt.Sprintf("Error (code %d): Command timed out after %s seconds", TimeoutExitCode, secs),
		ExitCode: TimeoutExitCode,
		Duration: elapsed,
	}
}

func failed(err error, elapsed time.Duration) Result {
	return Result{
		Outcome:  OutcomeError,
		Text:     "Error: " + err.Error(),
		ExitCode: -1,
		Duration: elapsed,
	}
}

// exited classifies a process that ran to completion. output is already
// trimmed.
func exited(code int, output string, truncated bool, elapsed time.Duration) Result {
	r := Result{ExitCode: code, Truncated: truncated, Duration: elapsed}
	switch {
	case output != "":
		r.Outcome = OutcomeOutput
		r.Text = output
		if truncated {
			r.Text += TruncationMarker
		}
	case code != 0:
		r.Outcome = OutcomeFailed
		r.Text = fmt.Sprintf("Error (code %d): Command failed with no output", code)
	default:
		r.Outcome = OutcomeNoOutput
		r.Text = "Command finished with exit code 0 (No output)"
	}
	return r
}
