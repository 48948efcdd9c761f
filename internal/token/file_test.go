package token

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xdg/privd/internal/clog"
)

func TestLoad(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
		match   string
	}{
		{name: "single line", content: "abc123\n", match: "abc123"},
		{name: "no newline", content: "abc123", match: "abc123"},
		{name: "surrounding whitespace", content: "  abc123 \r\n", match: "abc123"},
		{name: "only first line used", content: "abc123\nignored\n", match: "abc123"},
		{name: "empty file", content: "", wantErr: ErrEmpty},
		{name: "blank first line", content: "   \nabc123\n", wantErr: ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			s, err := Load(path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !s.Equal(tt.match) {
				t.Errorf("loaded secret does not match %q", tt.match)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoad_TightensPermissions(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("abc\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// WriteFile is subject to umask; force the loose mode
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != FileMode {
		t.Errorf("mode = %04o, want %04o", info.Mode().Perm(), FileMode)
	}
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")

	if err := Write(path, "first", false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != FileMode {
		t.Errorf("mode = %04o, want %04o", info.Mode().Perm(), FileMode)
	}

	got, err := LoadString(path)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if got != "first" {
		t.Errorf("LoadString() = %q, want first", got)
	}

	if err := Write(path, "second", false); !errors.Is(err, ErrExists) {
		t.Errorf("Write() without overwrite error = %v, want ErrExists", err)
	}

	if err := Write(path, "second", true); err != nil {
		t.Fatalf("Write() overwrite error = %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !s.Equal("second") {
		t.Error("overwritten token not loaded")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/srv/data")
	if got := DefaultPath(); got != "/srv/data/privd/token" {
		t.Errorf("DefaultPath() = %q, want /srv/data/privd/token", got)
	}
}
