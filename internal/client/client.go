// Package client talks to a running privd daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/xdg/privd/internal/clog"
)

// Defaults for Client.
const (
	DefaultDialTimeout = 2 * time.Second
	DefaultTimeout     = 60 * time.Second
	DefaultAttempts    = 3
	DefaultBackoff     = 100 * time.Millisecond

	// maxResponseBytes bounds how much of a response is read. The daemon
	// caps command output well below this.
	maxResponseBytes = 16 << 20
)

var (
	// ErrUnauthorized is returned when the daemon rejects the token.
	ErrUnauthorized = errors.New("daemon rejected token")

	// ErrUnavailable is returned when no connection could be made after
	// all attempts.
	ErrUnavailable = errors.New("daemon not responding")

	// ErrUnexpectedResponse is returned when a built-in command gets a reply
	// in the wrong shape.
	ErrUnexpectedResponse = errors.New("unexpected response from daemon")
)

const unauthorizedResponse = "Error: Unauthorized"

// Client sends commands to the daemon at one address.
//
// Only connection setup is retried. Once a command has been written it may
// already be running, so failures after that point are returned as-is.
type Client struct {
	addr        string
	token       string
	dialTimeout time.Duration
	timeout     time.Duration
	attempts    uint64
	backoff     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithTimeout bounds the exchange after the connection is made, including
// the command's run time on the daemon.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetry sets the number of connection attempts and the initial backoff,
// which doubles after each failed attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = uint64(attempts)
		c.backoff = backoff
	}
}

// New creates a client for the daemon at addr (host:port).
func New(addr, token string, opts ...Option) *Client {
	c := &Client{
		addr:        addr,
		token:       token,
		dialTimeout: DefaultDialTimeout,
		timeout:     DefaultTimeout,
		attempts:    DefaultAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the daemon address.
func (c *Client) Addr() string {
	return c.addr
}

// Send delivers command and returns the daemon's raw response.
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.timeout {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}

	// Unblock reads if ctx is cancelled mid-exchange.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := io.WriteString(conn, c.token+"\n"+command+"\n"); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(conn, maxResponseBytes))
	// A reset after the response arrived still leaves a complete answer;
	// the daemon writes its one response before closing.
	if err != nil && len(data) > 0 && errors.Is(err, syscall.ECONNRESET) {
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("read response: %w", err)
	}

	resp := strings.TrimSpace(string(data))
	if resp == unauthorizedResponse {
		return resp, ErrUnauthorized
	}
	return resp, nil
}

// dial connects with exponential backoff between attempts.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	backoff := retry.WithMaxRetries(c.attempts-1, retry.NewExponential(c.backoff))

	var conn net.Conn
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			clog.Debug("client: attempt %d/%d to %s failed: %v", attempt, c.attempts, c.addr, err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w at %s after %d attempt(s): %w", ErrUnavailable, c.addr, attempt, err)
	}
	return conn, nil
}

// Exec runs command on the daemon and parses the response.
//
// The returned Result is always usable as a process outcome: an
// unauthorized token yields exit code 126 and an unreachable daemon 255,
// alongside a non-nil error.
func (c *Client) Exec(ctx context.Context, command string) (Result, error) {
	resp, err := c.Send(ctx, command)
	switch {
	case errors.Is(err, ErrUnauthorized):
		return Result{ExitCode: ExitUnauthorized, Stderr: resp}, err
	case err != nil:
		return Result{ExitCode: ExitUnavailable, Stderr: "Error: " + err.Error()}, err
	}
	return ParseResult(resp), nil
}

// Ping checks that the daemon is up and accepts the token.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Send(ctx, "ping")
	if err != nil {
		return err
	}
	if resp != "pong" {
		return fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	return nil
}

// Status is the daemon's self-reported state.
type Status struct {
	Active int
	Uptime time.Duration
}

// Status queries the daemon's active connection count and uptime.
func (c *Client) Status(ctx context.Context) (Status, error) {
	resp, err := c.Send(ctx, "status")
	if err != nil {
		return Status{}, err
	}
	return ParseStatus(resp)
}

// ParseStatus parses a status response of the form
// "active:<n>,uptime:<seconds>".
func ParseStatus(resp string) (Status, error) {
	active, uptime, ok := strings.Cut(resp, ",")
	if !ok {
		return Status{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	n, err1 := parseField(active, "active")
	secs, err2 := parseField(uptime, "uptime")
	if err1 != nil || err2 != nil {
		return Status{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	return Status{Active: n, Uptime: time.Duration(secs) * time.Second}, nil
}

func parseField(s, name string) (int, error) {
	v, ok := strings.CutPrefix(s, name+":")
	if !ok {
		return 0, fmt.Errorf("missing %s", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad %s %q", name, v)
	}
	return n, nil
}
