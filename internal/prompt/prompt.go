// Package prompt reads interactive answers from the user. Interfaces keep
// commands testable with scripted answers.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrInvalidAnswer is returned when a yes/no question gets anything else.
var ErrInvalidAnswer = errors.New("invalid answer")

// Confirmer asks yes/no questions.
type Confirmer interface {
	// Confirm displays question and returns the answer. An empty answer
	// returns def.
	Confirm(question string, def bool) (bool, error)
}

// LineConfirmer implements Confirmer by reading a line from In.
type LineConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// NewLineConfirmer creates a LineConfirmer that reads from r and writes to w.
func NewLineConfirmer(r io.Reader, w io.Writer) *LineConfirmer {
	return &LineConfirmer{In: r, Out: w}
}

// Confirm displays "question [y/N]: " (or [Y/n]) and reads the answer.
func (c *LineConfirmer) Confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	_, _ = fmt.Fprintf(c.Out, "%s %s: ", question, hint)

	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w %q: expected y or n", ErrInvalidAnswer, strings.TrimSpace(line))
	}
}

// SecretReader reads a secret without echoing it.
type SecretReader interface {
	// ReadSecret displays prompt and returns the secret with surrounding
	// whitespace removed.
	ReadSecret(prompt string) (string, error)
}

// TerminalSecretReader implements SecretReader using golang.org/x/term.
// When In is not a terminal the first line is read as-is, so a secret can
// be piped in.
type TerminalSecretReader struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalSecretReader creates a TerminalSecretReader that reads from in
// (typically os.Stdin) and writes prompts to out.
func NewTerminalSecretReader(in *os.File, out io.Writer) *TerminalSecretReader {
	return &TerminalSecretReader{In: in, Out: out}
}

// ReadSecret displays the prompt and reads input with echoing disabled.
func (r *TerminalSecretReader) ReadSecret(prompt string) (string, error) {
	fd := int(r.In.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(r.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	_, _ = fmt.Fprint(r.Out, prompt)
	secret, err := term.ReadPassword(fd)
	// ReadPassword swallows the newline
	_, _ = fmt.Fprintln(r.Out)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// Scripted implements Confirmer and SecretReader for tests, returning
// queued answers in order and recording every prompt.
type Scripted struct {
	Answers []bool
	Secrets []string
	// Err, if set, is returned by every call.
	Err error
	// Prompts records the question or prompt of every call.
	Prompts []string
}

// Confirm returns the next queued answer, or def when the queue is empty.
func (s *Scripted) Confirm(question string, def bool) (bool, error) {
	s.Prompts = append(s.Prompts, question)
	if s.Err != nil {
		return false, s.Err
	}
	if len(s.Answers) == 0 {
		return def, nil
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return answer, nil
}

// ReadSecret returns the next queued secret, or "" when the queue is empty.
func (s *Scripted) ReadSecret(prompt string) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Secrets) == 0 {
		return "", nil
	}
	secret := s.Secrets[0]
	s.Secrets = s.Secrets[1:]
	return secret, nil
}
