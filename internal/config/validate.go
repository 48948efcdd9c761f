package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/xdg/privd/internal/clog"
)

// Validate checks that every field of cfg holds a usable value:
//   - listen.host is a loopback address and listen.port is 1-65535
//   - durations parse and are positive
//   - size and count limits are positive (queue_size, accept_rate and
//     accept_burst may be zero)
//   - denylist entries are non-empty
//   - log.level is one of: debug, info, warn, error (if non-empty)
//   - metrics.listen, if set, is a loopback host:port
//
// Returns nil if the config is valid, or an error naming the bad field.
func Validate(cfg *Config) error {
	if !IsLoopbackHost(cfg.Listen.Host) {
		return fmt.Errorf("listen.host: %q is not a loopback address", cfg.Listen.Host)
	}
	if err := validatePort(cfg.Listen.Port, "listen.port"); err != nil {
		return err
	}
	if cfg.TokenFile == "" {
		return fmt.Errorf("token_file: must be set")
	}
	if cfg.Shell == "" {
		return fmt.Errorf("shell: must be set")
	}

	l := cfg.Limits
	positive := []struct {
		field string
		value int
	}{
		{"limits.max_command_length", l.MaxCommandLength},
		{"limits.max_concurrent", l.MaxConcurrent},
		{"limits.workers", l.Workers},
		{"limits.max_output_bytes", l.MaxOutputBytes},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("%s: must be positive, got %d", p.field, p.value)
		}
	}
	if l.QueueSize < 0 {
		return fmt.Errorf("limits.queue_size: must be non-negative, got %d", l.QueueSize)
	}
	if l.AcceptRate < 0 {
		return fmt.Errorf("limits.accept_rate: must be non-negative, got %g", l.AcceptRate)
	}
	if l.AcceptBurst < 0 {
		return fmt.Errorf("limits.accept_burst: must be non-negative, got %d", l.AcceptBurst)
	}

	durations := []struct {
		field string
		value string
	}{
		{"limits.command_timeout", l.CommandTimeout},
		{"limits.read_timeout", l.ReadTimeout},
		{"limits.write_timeout", l.WriteTimeout},
		{"limits.slot_wait", l.SlotWait},
		{"limits.shutdown_grace", l.ShutdownGrace},
	}
	for _, d := range durations {
		if err := validateDuration(d.value, d.field); err != nil {
			return err
		}
	}

	for i, pattern := range cfg.Denylist {
		if pattern == "" {
			return fmt.Errorf("denylist[%d]: must not be empty", i)
		}
	}

	if _, err := clog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation settings must be non-negative")
	}

	if cfg.Metrics.Listen != "" {
		if err := validateLoopbackAddr(cfg.Metrics.Listen, "metrics.listen"); err != nil {
			return err
		}
	}

	return nil
}

// IsLoopbackHost reports whether host names the loopback interface.
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ParseDuration parses a validated duration field.
func ParseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func validatePort(port int, field string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s: invalid port number %d, must be 1-65535", field, port)
	}
	return nil
}

// validateLoopbackAddr validates a "host:port" address on loopback.
func validateLoopbackAddr(addr, field string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s: invalid format %q, expected host:port", field, addr)
	}
	if !IsLoopbackHost(host) {
		return fmt.Errorf("%s: %q is not a loopback address", field, host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("%s: invalid port %q in %q", field, portStr, addr)
	}
	return validatePort(port, field)
}

// validateDuration validates that d parses and is positive.
func validateDuration(d, field string) error {
	v, err := time.ParseDuration(d)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", field, d)
	}
	if v <= 0 {
		return fmt.Errorf("%s: must be positive, got %q", field, d)
	}
	return nil
}
