package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/pathutil"
)

// Load reads the configuration at path, or at DefaultPath() when path is
// empty. A missing file yields Default(). A file that cannot be read,
// parsed, or validated is an error. Paths containing ~ are expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	clog.Debug("config: loading %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			clog.Debug("config: %s not found, using defaults", path)
			cfg := Default()
			expandPaths(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	expandPaths(cfg)
	return cfg, nil
}

func expandPaths(cfg *Config) {
	cfg.TokenFile = pathutil.ExpandHome(cfg.TokenFile)
	cfg.Log.File = pathutil.ExpandHome(cfg.Log.File)
	cfg.Audit.File = pathutil.ExpandHome(cfg.Audit.File)
}
