package config

// DefaultPort is the daemon's canonical loopback port.
const DefaultPort = 18522

// DefaultDenylist holds substrings that cause a command to be rejected
// before execution. Matching is case-insensitive containment, which is easy
// to sidestep with quoting or spacing; it guards against accidents, not
// against a hostile client holding the token.
var DefaultDenylist = []string{
	"rm -rf /",
	"mkfs",
	"dd if=",
	"> /dev/",
	":(){ :|:& };:",
}

// Default returns a Config with all defaults populated.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Host: "127.0.0.1",
			Port: DefaultPort,
		},
		TokenFile: "~/.local/share/privd/token",
		Shell:     "/bin/sh",
		Limits: LimitsConfig{
			MaxCommandLength: 4096,
			MaxConcurrent:    4,
			Workers:          4,
			QueueSize:        0,
			CommandTimeout:   "30s",
			MaxOutputBytes:   1 << 20,
			ReadTimeout:      "10s",
			WriteTimeout:     "10s",
			SlotWait:         "5s",
			ShutdownGrace:    "5s",
		},
		Denylist: append([]string(nil), DefaultDenylist...),
		Log: LogConfig{
			File:       "~/.local/state/privd/privd.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// defaultConfigTemplate is written by WriteDefault. Every value matches
// Default().
const defaultConfigTemplate = `# privd configuration
#
# The daemon only ever binds to loopback.
listen:
  host: 127.0.0.1
  port: 18522

# File whose first line is the shared secret. Keep it mode 0600.
token_file: ~/.local/share/privd/token

shell: /bin/sh

limits:
  max_command_length: 4096   # characters
  max_concurrent: 4          # commands running at once
  workers: 4                 # connections handled at once
  queue_size: 0              # connections waiting for a worker
  command_timeout: 30s
  max_output_bytes: 1048576
  read_timeout: 10s
  write_timeout: 10s
  slot_wait: 5s
  shutdown_grace: 5s
  # accept_rate: 20          # new connections per second; 0 is unlimited
  # accept_burst: 20

# Commands containing any of these (case-insensitive) are refused.
denylist:
  - "rm -rf /"
  - "mkfs"
  - "dd if="
  - "> /dev/"
  - ":(){ :|:& };:"

log:
  file: ~/.local/state/privd/privd.log
  level: info
  max_size_mb: 10
  max_backups: 3

# One line per request: who sent what, and how it ended.
# audit:
#   file: ~/.local/state/privd/audit.log

# metrics:
#   listen: 127.0.0.1:18523
`
