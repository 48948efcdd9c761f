package config

import (
	"path/filepath"

	"github.com/xdg/privd/internal/pathutil"
)

// Dir returns the privd configuration directory.
// By default, this is ~/.config/privd. If XDG_CONFIG_HOME is set, it uses
// $XDG_CONFIG_HOME/privd instead.
func Dir() string {
	return pathutil.XDGPath("XDG_CONFIG_HOME", "~/.config", "privd")
}

// DefaultPath returns the full path to the configuration file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}
