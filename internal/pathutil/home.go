// Package pathutil provides path manipulation utilities.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ in path with the user's home directory.
// If the home directory cannot be determined, the path is returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// XDGPath joins elem onto the XDG base directory named by envVar.
// When envVar is unset, fallback (which may start with ~) is used instead.
//
//	XDGPath("XDG_DATA_HOME", "~/.local/share", "privd", "token")
func XDGPath(envVar, fallback string, elem ...string) string {
	base := os.Getenv(envVar)
	if base == "" {
		base = fallback
	}
	return filepath.Join(append([]string{ExpandHome(base)}, elem...)...)
}
