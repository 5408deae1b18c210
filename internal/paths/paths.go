// Package paths lays out the qvm home directory and the files inside each VM directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DirSuffix marks a VM directory under the home.
	DirSuffix = ".qvm"

	ConfFile = "vm.json"
	PIDFile  = "vm.pid"
	LockFile = ".lock"
	LogFile  = "qemu.log"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// ValidateName rejects names that cannot safely become a directory name.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("invalid VM name %q: use 1-63 letters, digits, '.', '_' or '-', starting with a letter or digit", name)
	}
	return nil
}

// DefaultHome returns ~/qvm.
func DefaultHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "qvm"), nil
}

// ExpandHome expands a leading ~ to the user's home directory and makes p
// absolute against the working directory.
func ExpandHome(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		p = filepath.Join(home, p[1:])
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return abs, nil
}

// ResolveUnderRoot returns candidate unchanged when it is absolute and
// joined onto root otherwise.
func ResolveUnderRoot(root, candidate string) string {
	if filepath.IsAbs(candidate) {
		return candidate
	}
	return filepath.Join(root, candidate)
}

// VMDir returns the directory of the VM called name.
func VMDir(home, name string) string {
	return filepath.Join(home, name+DirSuffix)
}

// NameFromDir is the inverse of VMDir. ok is false for directories that do
// not carry the VM suffix.
func NameFromDir(dir string) (name string, ok bool) {
	base := filepath.Base(dir)
	name, ok = strings.CutSuffix(base, DirSuffix)
	return name, ok && name != ""
}

func ConfPath(dir string) string { return filepath.Join(dir, ConfFile) }
func PIDPath(dir string) string  { return filepath.Join(dir, PIDFile) }
func LockPath(dir string) string { return filepath.Join(dir, LockFile) }
func LogPath(dir string) string  { return filepath.Join(dir, LogFile) }
