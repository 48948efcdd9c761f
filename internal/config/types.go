// Package config provides the daemon configuration. Settings are read from
// a YAML file and layered over built-in defaults.
package config

// Config is the top-level privd configuration.
// It is typically stored at ~/.config/privd/config.yaml.
type Config struct {
	Listen    ListenConfig  `yaml:"listen,omitempty"`
	TokenFile string        `yaml:"token_file,omitempty"`
	Shell     string        `yaml:"shell,omitempty"`
	Limits    LimitsConfig  `yaml:"limits,omitempty"`
	Denylist  []string      `yaml:"denylist,omitempty"`
	Log       LogConfig     `yaml:"log,omitempty"`
	Audit     AuditConfig   `yaml:"audit,omitempty"`
	Metrics   MetricsConfig `yaml:"metrics,omitempty"`
}

// ListenConfig is the daemon's TCP endpoint. Host must be a loopback
// address.
type ListenConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// LimitsConfig bounds what a single connection or command may consume.
// Durations use time.ParseDuration syntax.
type LimitsConfig struct {
	MaxCommandLength int     `yaml:"max_command_length,omitempty"`
	MaxConcurrent    int     `yaml:"max_concurrent,omitempty"`
	Workers          int     `yaml:"workers,omitempty"`
	QueueSize        int     `yaml:"queue_size,omitempty"`
	CommandTimeout   string  `yaml:"command_timeout,omitempty"`
	MaxOutputBytes   int     `yaml:"max_output_bytes,omitempty"`
	ReadTimeout      string  `yaml:"read_timeout,omitempty"`
	WriteTimeout     string  `yaml:"write_timeout,omitempty"`
	SlotWait         string  `yaml:"slot_wait,omitempty"`
	ShutdownGrace    string  `yaml:"shutdown_grace,omitempty"`
	AcceptRate       float64 `yaml:"accept_rate,omitempty"`
	AcceptBurst      int     `yaml:"accept_burst,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	File       string `yaml:"file,omitempty"`
	Level      string `yaml:"level,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// AuditConfig controls the per-request audit trail. An empty File disables
// it. The file rotates with the log settings.
type AuditConfig struct {
	File string `yaml:"file,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables
// it.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}
