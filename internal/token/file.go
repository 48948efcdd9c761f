package token

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/pathutil"
)

// FileMode is the permission the token file is expected to carry.
const FileMode fs.FileMode = 0o600

var (
	// ErrNotFound is returned when the token file does not exist.
	ErrNotFound = errors.New("token file not found")
	// ErrEmpty is returned when the token file's first line is blank.
	ErrEmpty = errors.New("token file is empty")
	// ErrExists is returned by Write when the file exists and overwrite is off.
	ErrExists = errors.New("token file already exists")
)

// DefaultPath returns the default token file location,
// $XDG_DATA_HOME/privd/token (~/.local/share/privd/token).
func DefaultPath() string {
	return pathutil.XDGPath("XDG_DATA_HOME", "~/.local/share", "privd", "token")
}

// Load reads the shared secret from the first line of the file at path.
//
// If the file is readable by group or others, Load tightens it to FileMode
// and logs a warning. A failure to tighten is logged but not fatal; a
// missing, unreadable or empty file is.
func Load(path string) (Secret, error) {
	path = pathutil.ExpandHome(path)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Secret{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Secret{}, fmt.Errorf("stat token file: %w", err)
	}
	if info.IsDir() {
		return Secret{}, fmt.Errorf("token file %s is a directory", path)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		clog.Warn("token file %s has mode %04o; tightening to %04o", path, perm, FileMode)
		if err := os.Chmod(path, FileMode); err != nil {
			clog.Warn("failed to tighten token file permissions: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return Secret{}, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	line, err := firstLine(f)
	if err != nil {
		return Secret{}, fmt.Errorf("read token file: %w", err)
	}
	if line == "" {
		return Secret{}, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return NewSecret(line), nil
}

// LoadString reads the raw token value from path, for clients that need to
// send it. The daemon itself only ever holds a Secret.
func LoadString(path string) (string, error) {
	path = pathutil.ExpandHome(path)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	line, err := firstLine(f)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	if line == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return line, nil
}

// Write stores value in a new token file at path with FileMode permissions,
// creating parent directories with 0700. Unless overwrite is set, an
// existing file is left untouched and ErrExists is returned.
func Write(path, value string, overwrite bool) error {
	path = pathutil.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, FileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("create token file: %w", err)
	}

	if _, err := f.WriteString(value + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	// O_CREATE honours umask and leaves existing modes alone
	return os.Chmod(path, FileMode)
}

func firstLine(f *os.File) (string, error) {
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return "", sc.Err()
	}
	return strings.TrimSpace(sc.Text()), nil
}
