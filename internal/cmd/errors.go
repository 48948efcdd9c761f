package cmd

import (
	"errors"
	"fmt"

	"github.com/xdg/privd/internal/client"
)

// ExitCodeError asks main to exit with Code without printing anything
// further. Commands return it when the exit status itself is the result,
// as with exec mirroring the remote command.
type ExitCodeError struct {
	Code int
}

// NewExitCodeError returns an ExitCodeError for code.
func NewExitCodeError(code int) *ExitCodeError {
	return &ExitCodeError{Code: code}
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// exitNotRunning is the status exit code when no daemon is running,
// matching the LSB convention for "program is not running".
const exitNotRunning = 3

// daemonNotRunningError returns a user-friendly error when the daemon
// cannot be reached.
func daemonNotRunningError(addr string) error {
	return fmt.Errorf("privd daemon is not running at %s; start it with 'privd daemon run'", addr)
}

// clientError turns client sentinel errors into user-facing messages.
// Other errors are returned unchanged.
func clientError(err error, addr string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("token rejected by daemon at %s; check the token file", addr)
	case errors.Is(err, client.ErrUnavailable):
		return daemonNotRunningError(addr)
	}
	return err
}
