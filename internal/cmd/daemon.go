package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdg/privd/internal/audit"
	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/config"
	"github.com/xdg/privd/internal/daemon"
	"github.com/xdg/privd/internal/executor"
	"github.com/xdg/privd/internal/metrics"
	"github.com/xdg/privd/internal/pathutil"
	"github.com/xdg/privd/internal/server"
	"github.com/xdg/privd/internal/term"
	"github.com/xdg/privd/internal/token"
)

// stopTimeout bounds how long 'daemon stop' waits for the process to exit.
const stopTimeout = 15 * time.Second

var (
	runPort      int
	runTokenFile string
	runDebug     bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run and manage the privd daemon",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Run the privd daemon in the foreground until interrupted.

The daemon reads the shared secret from the token file, binds the configured
loopback address, and serves commands until it receives SIGINT or SIGTERM.
Shutdown waits for running commands up to limits.shutdown_grace, then kills
them.

Exits with status 1 if the token file is missing or empty, the configuration
is invalid, or the address cannot be bound.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Long: `Send SIGTERM to the daemon recorded in the state file and wait for it to exit.

Does nothing if no daemon is running.`,
	Args: cobra.NoArgs,
	RunE: runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	Long: `Show the daemon's PID, address, and start time from the state file, and
query it for active connections and uptime.

Exits with status 3 if no daemon is running.`,
	Args: cobra.NoArgs,
	RunE: runDaemonStatus,
}

func init() {
	daemonRunCmd.Flags().IntVar(&runPort, "port", 0, "listen port (overrides config)")
	daemonRunCmd.Flags().StringVar(&runTokenFile, "token-file", "", "token file (overrides config)")
	daemonRunCmd.Flags().BoolVar(&runDebug, "debug", false, "enable debug logging")
	addClientFlags(daemonStatusCmd)

	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// runDaemon starts the server and blocks until interrupted.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Listen.Port = runPort
	}
	if runTokenFile != "" {
		cfg.TokenFile = pathutil.ExpandHome(runTokenFile)
	}
	if runDebug {
		cfg.Log.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := setupDaemonLogging(cfg); err != nil {
		return err
	}
	defer clog.Close()

	secret, err := token.Load(cfg.TokenFile)
	if err != nil {
		clog.Error("failed to load token: %v", err)
		return fmt.Errorf("failed to load token: %w", err)
	}

	if st, err := daemon.Load(); err == nil && daemon.IsRunning(st) && st.PID != os.Getpid() {
		return fmt.Errorf("daemon already running (pid %d on %s)", st.PID, st.Addr())
	}
	if err := daemon.CleanupStale(); err != nil {
		clog.Warn("failed to clean up stale daemon state: %v", err)
	}

	reg := metrics.NewRegistry()
	exec := executor.NewShellExecutor(
		executor.WithShell(cfg.Shell),
		executor.WithTimeout(config.ParseDuration(cfg.Limits.CommandTimeout)),
		executor.WithMaxOutput(cfg.Limits.MaxOutputBytes),
	)
	auditLog, closeAudit, err := openAuditLog(cfg)
	if err != nil {
		clog.Error("failed to open audit log: %v", err)
		return err
	}
	defer closeAudit()

	srv := server.New(server.ConfigFrom(cfg), secret, exec,
		server.WithMetrics(reg), server.WithAudit(auditLog))
	reg.WatchSlots(srv.Gate())

	if err := srv.Start(); err != nil {
		clog.Error("failed to start daemon: %v", err)
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Listen != "" {
		metricsSrv = metrics.NewServer(cfg.Metrics.Listen, reg)
		if err := metricsSrv.Start(); err != nil {
			clog.Warn("metrics disabled: %v", err)
			metricsSrv = nil
		}
	}

	state := &daemon.State{
		PID:     os.Getpid(),
		Host:    cfg.Listen.Host,
		Port:    srv.Addr().(*net.TCPAddr).Port,
		Started: time.Now().UTC(),
	}
	if err := daemon.Save(state); err != nil {
		clog.Warn("failed to save daemon state: %v", err)
	}
	term.Printf("privd %s listening on %s (pid %d)\n", cmd.Root().Version, srv.Addr(), state.PID)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	clog.Info("received shutdown signal")

	grace := config.ParseDuration(cfg.Limits.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		clog.Warn("shutdown: %v", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			clog.Warn("metrics shutdown: %v", err)
		}
	}
	if err := daemon.Remove(); err != nil {
		clog.Warn("failed to remove daemon state: %v", err)
	}

	term.Println("privd stopped")
	return nil
}

// setupDaemonLogging routes clog, and the standard library logger, to the
// configured rotating log file. Warnings also reach stderr when it is a
// terminal.
func setupDaemonLogging(cfg *config.Config) error {
	path := cfg.Log.File
	if path == "" {
		path = clog.DefaultLogPath()
	}

	level, err := clog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	opts := clog.Options{
		File: clog.FileOptions{
			Path:       path,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		},
		Level:  level,
		Daemon: !term.IsTerminal(os.Stderr),
	}
	if err := clog.Configure(opts); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	clog.RedirectStdLog(clog.LevelInfo)
	return nil
}

// openAuditLog opens the configured audit file with the log rotation
// settings. With no audit file configured it returns a nil logger, which
// records nothing.
func openAuditLog(cfg *config.Config) (*audit.Logger, func(), error) {
	if cfg.Audit.File == "" {
		return nil, func() {}, nil
	}
	w, err := clog.OpenLogFile(clog.FileOptions{
		Path:       cfg.Audit.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	clog.Info("audit log: %s", cfg.Audit.File)
	return audit.NewLogger(w), func() { _ = w.Close() }, nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	st, err := daemon.Load()
	if err != nil {
		return err
	}
	if !daemon.IsRunning(st) {
		if err := daemon.CleanupStale(); err != nil {
			return err
		}
		term.Println("privd daemon is not running")
		return nil
	}

	if err := daemon.Stop(st); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	if !daemon.WaitStopped(st, stopTimeout) {
		return fmt.Errorf("daemon (pid %d) did not exit within %v", st.PID, stopTimeout)
	}
	if err := daemon.Remove(); err != nil {
		return err
	}

	term.Printf("Stopped privd daemon (pid %d)\n", st.PID)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	st, err := daemon.Load()
	if err != nil {
		return err
	}
	if !daemon.IsRunning(st) {
		term.Println("privd daemon is not running")
		return NewExitCodeError(exitNotRunning)
	}

	term.Printf("pid:     %d\n", st.PID)
	term.Printf("address: %s\n", st.Addr())
	term.Printf("started: %s\n", st.Started.Local().Format(time.RFC3339))

	if clientAddr == "" {
		clientAddr = st.Addr()
	}
	c, err := newClient()
	if err != nil {
		term.Warn("cannot query daemon: %v", err)
		return nil
	}
	status, err := c.Status(cmd.Context())
	if err != nil {
		term.Warn("cannot query daemon: %v", clientError(err, c.Addr()))
		return nil
	}
	term.Printf("active:  %d\n", status.Active)
	term.Printf("uptime:  %s\n", status.Uptime)
	return nil
}
