package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hamed0406/servermon/internal/domain"
)

const DefaultFileName = ".servermon.cfg"

// DefaultPath is the per-user state file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Error reports a failed import or export of the state file.
type Error struct {
	Op   string // "import" or "export"
	Path string
	Err  error
}

func (e *Error) Error() string { return e.Op + " " + e.Path + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// File reads and writes the state document at Path.
type File struct {
	Path string
}

func (f File) Exists() bool {
	if f.Path == "" {
		return false
	}
	_, err := os.Stat(f.Path)
	return err == nil
}

// Load reads and decodes the file. It has no side effects on failure.
func (f File) Load() ([]domain.Endpoint, time.Duration, error) {
	if f.Path == "" {
		return nil, 0, &Error{Op: "import", Path: f.Path, Err: errors.New("no state path configured")}
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, 0, &Error{Op: "import", Path: f.Path, Err: err}
	}
	endpoints, interval, err := Decode(data)
	if err != nil {
		return nil, 0, &Error{Op: "import", Path: f.Path, Err: err}
	}
	return endpoints, interval, nil
}

// Save writes through a temp file and rename so a failed write never leaves
// a truncated state file behind.
func (f File) Save(endpoints []domain.Endpoint, interval time.Duration) error {
	if f.Path == "" {
		return &Error{Op: "export", Path: f.Path, Err: errors.New("no state path configured")}
	}
	data, err := Encode(endpoints, interval)
	if err != nil {
		return &Error{Op: "export", Path: f.Path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return &Error{Op: "export", Path: f.Path, Err: fmt.Errorf("ensure directory: %w", err)}
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", f.Path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return &Error{Op: "export", Path: f.Path, Err: fmt.Errorf("write temp file: %w", err)}
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Op: "export", Path: f.Path, Err: fmt.Errorf("replace state file: %w", err)}
	}
	return nil
}
