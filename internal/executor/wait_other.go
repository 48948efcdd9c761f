//go:build !linux

package executor

import "os"

// awaitExit reports false: without waitid there is no way to wait for
// the shell and keep its PID reserved, so the group is not swept after a
// normal exit.
func awaitExit(*os.Process) bool { return false }
