package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/term"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is up and accepts the token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Ping(cmd.Context()); err != nil {
			return clientError(err, c.Addr())
		}
		term.Println("pong")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's active connections and uptime",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return clientError(err, c.Addr())
		}
		term.Printf("active: %d\nuptime: %s\n", st.Active, st.Uptime)
		return nil
	},
}

func init() {
	addClientFlags(pingCmd)
	addClientFlags(statusCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
}
