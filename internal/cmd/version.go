package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/term"
	"github.com/xdg/privd/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the privd version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		term.Printf("privd %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
