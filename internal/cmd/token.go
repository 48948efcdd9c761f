package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/daemon"
	"github.com/xdg/privd/internal/pathutil"
	"github.com/xdg/privd/internal/prompt"
	"github.com/xdg/privd/internal/term"
	"github.com/xdg/privd/internal/token"
)

var (
	tokenFile  string
	tokenForce bool
)

// Interactive input, replaced in tests.
var (
	confirmer       prompt.Confirmer    = prompt.NewLineConfirmer(os.Stdin, os.Stderr)
	secretReader    prompt.SecretReader = prompt.NewTerminalSecretReader(os.Stdin, os.Stderr)
	stdinIsTerminal                     = func() bool { return term.IsTerminal(os.Stdin) }
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the shared secret",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a new random token file",
	Long: `Generate a random 256-bit token and write it to the token file with mode 0600.

An existing token file is left alone unless --force is given or, on a
terminal, you confirm the replacement. A running daemon keeps its old token
until restarted.`,
	Args: cobra.NoArgs,
	RunE: runTokenGenerate,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Write a token file from a secret you supply",
	Long: `Read a secret and write it to the token file with mode 0600.

On a terminal the secret is read without echo. Otherwise the first line of
stdin is used, so a secret can be piped in:

  pass show privd | privd token set --force

Use this to share one secret between hosts. Prefer 'privd token generate'
when you do not need a specific value.`,
	Args: cobra.NoArgs,
	RunE: runTokenSet,
}

var tokenPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the token file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveTokenFile()
		if err != nil {
			return err
		}
		term.Println(path)
		return nil
	},
}

func init() {
	tokenCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "token file (default from config)")
	tokenGenerateCmd.Flags().BoolVarP(&tokenForce, "force", "f", false, "replace an existing token file")
	tokenSetCmd.Flags().BoolVarP(&tokenForce, "force", "f", false, "replace an existing token file")

	tokenCmd.AddCommand(tokenGenerateCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenPathCmd)
	rootCmd.AddCommand(tokenCmd)
}

// resolveTokenFile returns --token-file or the configured token file.
func resolveTokenFile() (string, error) {
	if tokenFile != "" {
		return pathutil.ExpandHome(tokenFile), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.TokenFile, nil
}

func runTokenGenerate(cmd *cobra.Command, args []string) error {
	path, err := resolveTokenFile()
	if err != nil {
		return err
	}
	value, err := token.Generate()
	if err != nil {
		return err
	}
	return writeToken(path, value)
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	path, err := resolveTokenFile()
	if err != nil {
		return err
	}

	secret, err := secretReader.ReadSecret("Token: ")
	if err != nil {
		return err
	}
	if err := token.Validate(secret); err != nil {
		return err
	}
	if token.Weak(secret) {
		term.Warn("token is shorter than %d characters", token.MinLength)
	}
	return writeToken(path, secret)
}

// writeToken writes value to path. An existing file is replaced with
// --force, or after confirmation when stdin is a terminal.
func writeToken(path, value string) error {
	err := token.Write(path, value, tokenForce)
	if errors.Is(err, token.ErrExists) && stdinIsTerminal() {
		replace, perr := confirmer.Confirm(fmt.Sprintf("Token file %s exists. Replace it?", path), false)
		if perr != nil {
			return perr
		}
		if !replace {
			term.Println("Token file unchanged")
			return nil
		}
		err = token.Write(path, value, true)
	}
	if err != nil {
		if errors.Is(err, token.ErrExists) {
			return fmt.Errorf("token file %s already exists; use --force to replace it", path)
		}
		return fmt.Errorf("failed to write token: %w", err)
	}

	term.Printf("Wrote new token to %s\n", path)
	if st, err := daemon.Load(); err == nil && daemon.IsRunning(st) {
		term.Warn("daemon (pid %d) is still using the previous token; restart it to apply", st.PID)
	}
	return nil
}
