// Package process tracks the engine process behind a VM through its pid record.
package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoRecord means the VM has no pid record.
	ErrNoRecord = errors.New("no pid record")
	// ErrBadRecord means the pid record exists but cannot be parsed.
	ErrBadRecord = errors.New("unreadable pid record")
)

// Record is the content of vm.pid: the pid on the first line and, when
// known, the spawn time in RFC 3339 on the second.
type Record struct {
	PID     int
	Started time.Time
}

// ReadRecord parses the pid record at path.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return Record{}, fmt.Errorf("%w: %s: %q", ErrBadRecord, path, lines[0])
	}

	rec := Record{PID: pid}
	if len(lines) > 1 {
		// The timestamp is informational; a bad one does not void the pid.
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1])); err == nil {
			rec.Started = ts
		}
	}
	return rec, nil
}

// WriteRecord replaces the pid record at path atomically.
func WriteRecord(path string, rec Record) error {
	content := strconv.Itoa(rec.PID) + "\n"
	if !rec.Started.IsZero() {
		content += rec.Started.UTC().Format(time.RFC3339) + "\n"
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create pid record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pid record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write pid record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write pid record: %w", err)
	}
	return nil
}

// RemoveRecord deletes the pid record. A missing record is not an error.
func RemoveRecord(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pid record %s: %w", path, err)
	}
	return nil
}
