package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/client"
	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/term"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command>...",
	Short: "Run a command through the daemon",
	Long: `Send a command to the daemon and print its output.

Arguments are joined with spaces into one shell command line. Use -- to stop
flag parsing before the command:

  privd exec -- ls -la /data

The exit status mirrors the remote command: a command that fails with
"Error (code N)" exits N, a rejected request exits 1, a rejected token exits
126, and an unreachable daemon exits 255.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	addClientFlags(execCmd)
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	res, err := c.Exec(cmd.Context(), command)
	if err != nil {
		clog.Debug("exec %q: %v", command, err)
		if errors.Is(err, client.ErrUnavailable) {
			term.ErrOutput("Error: " + daemonNotRunningError(c.Addr()).Error())
			return NewExitCodeError(res.ExitCode)
		}
	}

	if res.Stdout != "" {
		term.Output(res.Stdout)
	}
	if res.Stderr != "" {
		term.ErrOutput(res.Stderr)
	}
	if res.ExitCode != 0 {
		return NewExitCodeError(res.ExitCode)
	}
	return nil
}
