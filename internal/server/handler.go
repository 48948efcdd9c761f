package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/xdg/privd/internal/audit"
	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/executor"
	"github.com/xdg/privd/internal/metrics"
)

// Protocol responses.
const (
	msgUnauthorized   = "Error: Unauthorized"
	msgEmptyCommand   = "Error: Empty command"
	msgBlocked        = "Error: Command blocked for safety"
	msgTooManyRunning = "Error: Too many concurrent commands"
	msgServerBusy     = "Error: Server busy"
	msgShuttingDown   = "Error: Server shutting down"
	msgNoOutput       = "(No output from command)"
	msgPong           = "pong"
)

// maxTokenLineBytes bounds the token line so an unauthenticated client
// cannot make the server buffer arbitrary input.
const maxTokenLineBytes = 1024

// Outcome labels for requests that never reach the executor.
const (
	outcomeEmpty   = "empty"
	outcomeTooLong = "too_long"
	outcomePing    = "ping"
	outcomeStatus  = "status"
	outcomeClosing = "shutting_down"
)

var errLineTooLong = errors.New("line too long")

// session is the state of one connection.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
	log    *clog.Logger
	origin audit.Origin
}

// handle runs the protocol for one connection and always closes it.
func (s *Server) handle(conn net.Conn) {
	id := uuid.NewString()[:8]
	sess := &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		log:    s.log.With("conn", id, "remote", conn.RemoteAddr()),
		origin: audit.Origin{Conn: id, Remote: conn.RemoteAddr().String()},
	}
	defer s.release(conn)
	defer func() {
		if r := recover(); r != nil {
			sess.log.Error("panic handling connection: %v\n%s", r, debug.Stack())
		}
	}()

	s.serve(sess)
}

func (s *Server) serve(sess *session) {
	tokenLine, err := readLine(sess.reader, maxTokenLineBytes)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, errLineTooLong):
		// A client that sends nothing, or garbage, is treated as
		// presenting a wrong token.
	case err != nil:
		sess.log.Warn("read token: %v", err)
		s.metrics.Connection(metrics.ConnReadError)
		return
	}
	if err != nil || !s.secret.Equal(tokenLine) {
		sess.log.Warn("unauthorized connection attempt")
		s.metrics.Connection(metrics.ConnUnauthorized)
		s.deny(sess, "", audit.ReasonUnauthorized, "")
		s.writeLine(sess, msgUnauthorized)
		return
	}

	line, err := readLine(sess.reader, s.commandLineLimit())
	switch {
	case errors.Is(err, io.EOF):
		line = ""
	case errors.Is(err, errLineTooLong):
		s.respondTooLong(sess, "")
		return
	case err != nil:
		sess.log.Warn("read command: %v", err)
		s.metrics.Connection(metrics.ConnReadError)
		return
	}

	command := strings.TrimSpace(line)
	if command == "" {
		s.metrics.Command(outcomeEmpty, 0, false)
		s.writeLine(sess, msgEmptyCommand)
		return
	}
	if utf8.RuneCountInString(line) > s.cfg.MaxCommandLength {
		s.respondTooLong(sess, command)
		return
	}
	sess.log.Info("received command: %q", command)

	if pattern, blocked := s.denylist.Match(command); blocked {
		sess.log.Warn("blocked command matching %q", pattern)
		s.metrics.Command(string(executor.OutcomeBlocked), 0, false)
		s.deny(sess, command, audit.ReasonBlocked, pattern)
		s.writeLine(sess, msgBlocked)
		return
	}

	switch strings.ToLower(command) {
	case "ping":
		s.metrics.Command(outcomePing, 0, false)
		s.write(sess, msgPong)
		return
	case "status":
		s.metrics.Command(outcomeStatus, 0, false)
		s.write(sess, s.statusText())
		return
	}

	s.run(sess, command)
}

// run executes command in an execution slot and writes the result.
func (s *Server) run(sess *session, command string) {
	if s.shuttingDown() {
		s.metrics.Command(outcomeClosing, 0, false)
		s.deny(sess, command, audit.ReasonShuttingDown, "")
		s.writeLine(sess, msgShuttingDown)
		return
	}

	release, err := s.gate.Acquire(s.stopping, s.cfg.SlotWait)
	if err != nil {
		if s.shuttingDown() {
			s.metrics.Command(outcomeClosing, 0, false)
			s.deny(sess, command, audit.ReasonShuttingDown, "")
			s.writeLine(sess, msgShuttingDown)
			return
		}
		sess.log.Warn("no execution slot after %v", s.cfg.SlotWait)
		s.metrics.Command(string(executor.OutcomeBusy), 0, false)
		s.deny(sess, command, audit.ReasonBusy, "")
		s.writeLine(sess, msgTooManyRunning)
		return
	}

	if err := s.audit.LogRequest(sess.origin, command); err != nil {
		sess.log.Warn("audit: %v", err)
	}
	result := func() executor.Result {
		defer release()
		return s.executor.Execute(s.running, executor.Request{Command: command})
	}()

	s.metrics.Command(string(result.Outcome), result.Duration, result.Truncated)
	s.auditResult(sess, command, result)
	sess.log.Info("command finished: outcome=%s exit=%d duration=%v bytes=%d",
		result.Outcome, result.ExitCode, result.Duration.Round(time.Millisecond), len(result.Text))

	text := result.Text
	if text == "" {
		text = msgNoOutput
	}
	s.write(sess, text)
}

// auditResult records how an executed command ended.
func (s *Server) auditResult(sess *session, command string, r executor.Result) {
	var err error
	if r.Outcome == executor.OutcomeTimeout {
		err = s.audit.LogTimeout(sess.origin, command, r.Duration)
	} else {
		err = s.audit.LogComplete(sess.origin, command, r.ExitCode, r.Duration, r.Truncated)
	}
	if err != nil {
		sess.log.Warn("audit: %v", err)
	}
}

func (s *Server) deny(sess *session, command, reason, pattern string) {
	if err := s.audit.LogDeny(sess.origin, command, reason, pattern); err != nil {
		sess.log.Warn("audit: %v", err)
	}
}

// respondTooLong rejects an oversized command. command is empty when the
// line was too long to read at all.
func (s *Server) respondTooLong(sess *session, command string) {
	s.metrics.Command(outcomeTooLong, 0, false)
	s.deny(sess, command, audit.ReasonTooLong, "")
	s.writeLine(sess, fmt.Sprintf("Error: Command too long (max %d characters)", s.cfg.MaxCommandLength))
}

// statusText reports the active connection count and uptime in seconds.
func (s *Server) statusText() string {
	return fmt.Sprintf("active:%d,uptime:%d", s.ActiveConnections(), int64(s.Uptime().Seconds()))
}

// commandLineLimit is the most bytes a command line of MaxCommandLength
// characters can occupy, plus room for a CRLF.
func (s *Server) commandLineLimit() int {
	return s.cfg.MaxCommandLength*utf8.UTFMax + 2
}

// writeLine writes a newline-terminated protocol error.
func (s *Server) writeLine(sess *session, msg string) {
	s.write(sess, msg+"\n")
}

// write sends text under the write deadline. Failures are logged only; the
// connection is closed either way.
func (s *Server) write(sess *session, text string) {
	_ = sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := io.WriteString(sess.conn, text); err != nil {
		sess.log.Warn("write response: %v", err)
		return
	}
	sess.log.Debug("sent %d bytes", len(text))
}

// readLine reads up to and including the next '\n' and returns the line
// without its terminator (a trailing '\r' is dropped too). Lines longer than
// limit bytes return errLineTooLong. A final line without a terminator is
// returned as-is; io.EOF is returned only when no data was read.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > limit+1 {
			return "", errLineTooLong
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				break
			}
			return "", err
		}
		break
	}

	line := strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	if len(line) > limit {
		return "", errLineTooLong
	}
	return line, nil
}
