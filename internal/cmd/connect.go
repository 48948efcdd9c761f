package cmd

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/client"
	"github.com/xdg/privd/internal/config"
	"github.com/xdg/privd/internal/daemon"
	"github.com/xdg/privd/internal/pathutil"
	"github.com/xdg/privd/internal/token"
)

// Flags shared by commands that talk to the daemon.
var (
	clientAddr      string
	clientTokenFile string
	clientTimeout   time.Duration
)

// addClientFlags registers the connection flags on cmd.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientAddr, "addr", "", "daemon address host:port (default from daemon state or config)")
	cmd.Flags().StringVar(&clientTokenFile, "token-file", "", "token file (default from config)")
	cmd.Flags().DurationVar(&clientTimeout, "timeout", 0, "time to wait for a response (default command timeout + 10s)")
}

// loadConfig loads the file named by --config, or the default location.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// daemonAddr picks the address to contact: --addr, then a running daemon's
// state file, then the configured listen address.
func daemonAddr(cfg *config.Config) string {
	if clientAddr != "" {
		return clientAddr
	}
	if st, err := daemon.Load(); err == nil && daemon.IsRunning(st) {
		return st.Addr()
	}
	return net.JoinHostPort(cfg.Listen.Host, strconv.Itoa(cfg.Listen.Port))
}

// newClient builds a client from flags and configuration.
func newClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tokenFile := cfg.TokenFile
	if clientTokenFile != "" {
		tokenFile = pathutil.ExpandHome(clientTokenFile)
	}
	secret, err := token.LoadString(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	timeout := clientTimeout
	if timeout <= 0 {
		timeout = config.ParseDuration(cfg.Limits.CommandTimeout) + 10*time.Second
	}

	return client.New(daemonAddr(cfg), secret, client.WithTimeout(timeout)), nil
}
