// Package cmd implements the CLI commands for privd.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/term"
	"github.com/xdg/privd/internal/version"
)

var (
	configPath string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "privd",
	Short: "Loopback command execution daemon",
	Long: `privd runs shell commands on behalf of local clients that hold a shared secret.

The daemon listens on 127.0.0.1 only. Each connection sends the secret and one
command line; the daemon runs the command with sh -c and answers with its
combined output. Dangerous commands are refused, concurrent executions are
capped, and every command runs under a timeout.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		term.SetQuiet(quiet)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/privd/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress normal output")
}

// Execute runs the root command and returns any error.
// Errors other than ExitCodeError are reported on stderr.
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *ExitCodeError
	if err != nil && !errors.As(err, &exitErr) {
		term.Error("%v", err)
	}
	return err
}
