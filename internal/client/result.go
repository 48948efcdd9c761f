package client

import (
	"regexp"
	"strconv"
	"strings"
)

// Exit codes reported for failures that never produced a command exit code.
const (
	ExitUnauthorized = 126
	ExitUnavailable  = 255
)

// Result is a daemon response mapped back onto process semantics.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

var (
	codedError   = regexp.MustCompile(`(?s)^Error \(code (\d+)\): (.*)$`)
	finishedExit = regexp.MustCompile(`^Command finished with exit code (\d+)`)
)

// ParseResult maps a daemon response to an exit code and output:
//
//	"Error (code N): msg"                  → exit N, stderr msg
//	"Error: msg"                           → exit 1, stderr msg
//	"Command finished with exit code N ..." → exit N, no output
//	"(No output from command)"             → exit 0, no output
//	anything else                          → exit 0, stdout as-is
//
// Command output that itself starts with "Error" is indistinguishable from
// a daemon error and is reported as one.
func ParseResult(resp string) Result {
	resp = strings.TrimSpace(resp)

	if m := codedError.FindStringSubmatch(resp); m != nil {
		code, err := strconv.Atoi(m[1])
		if err != nil {
			code = 1
		}
		return Result{ExitCode: code, Stderr: m[2]}
	}

	if msg, ok := strings.CutPrefix(resp, "Error:"); ok {
		return Result{ExitCode: 1, Stderr: strings.TrimSpace(msg)}
	}

	if m := finishedExit.FindStringSubmatch(resp); m != nil {
		code, _ := strconv.Atoi(m[1])
		rest := strings.TrimSpace(resp[len(m[0]):])
		if code == 0 {
			return Result{}
		}
		if rest == "" {
			rest = "Command failed"
		}
		return Result{ExitCode: code, Stderr: rest}
	}

	if resp == "(No output from command)" {
		return Result{}
	}

	return Result{Stdout: resp}
}
