package process

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// Prober answers whether a pid belongs to a live process.
type Prober interface {
	IsAlive(pid int) bool
}

// SignalProber probes with signal 0. A process owned by another user
// (EPERM) counts as alive. Zombies count as dead when ProcRoot exposes
// their state.
type SignalProber struct {
	// ProcRoot is the procfs mount, "/proc" when empty. Hosts without
	// procfs skip the zombie check.
	ProcRoot string
}

func (p SignalProber) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	return !p.isZombie(pid)
}

func (p SignalProber) isZombie(pid int) bool {
	root := p.ProcRoot
	if root == "" {
		root = "/proc"
	}
	data, err := os.ReadFile(filepath.Join(root, fmt.Sprint(pid), "stat"))
	if err != nil {
		return false
	}
	// The command name may contain spaces or parentheses; the state field
	// follows the last ')'.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return false
	}
	return data[i+2] == 'Z'
}

// Signal sends sig to pid.
func Signal(pid int, sig syscall.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("failed to send %s to pid %d: %w", sig, pid, err)
	}
	return nil
}
