// Package clog is privd's operational log: daemon lifecycle, rejected
// connections and executor failures. User-facing CLI output lives in
// internal/term and per-command records in internal/audit.
//
// Lines go to the rotating file named by log.file. Outside daemon mode
// warnings and errors are also echoed to stderr.
package clog

import (
	"fmt"
	"strings"
)

// Level is a log severity. Messages below the configured level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

// String returns the level as it appears in log lines, e.g. "WARN".
func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return strings.ToUpper(levelNames[l])
}

// ParseLevel maps a log.level setting to a Level. The empty string is
// LevelInfo; anything other than debug, info, warn or error is an error.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelInfo, nil
	}
	for l, name := range levelNames {
		if s == name {
			return Level(l), nil
		}
	}
	return LevelInfo, fmt.Errorf("invalid log level %q, must be one of: %s",
		s, strings.Join(levelNames[:], ", "))
}
