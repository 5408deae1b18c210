// Package vm implements the VM lifecycle: create, start, stop, delete and
// configuration changes, all keyed by VM name under a home directory.
package vm

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qvm-dev/qvm/internal/disk"
	"github.com/qvm-dev/qvm/internal/lock"
	"github.com/qvm-dev/qvm/internal/paths"
	"github.com/qvm-dev/qvm/internal/process"
	"github.com/qvm-dev/qvm/internal/qemu"
	"github.com/qvm-dev/qvm/pkg/api"
)

// DefaultStopTimeout is the grace period between SIGTERM and giving up (or
// SIGKILL when forced).
const DefaultStopTimeout = 30 * time.Second

// killWait bounds the wait for a process to vanish after SIGKILL.
const killWait = 5 * time.Second

// State represents the VM state.
type State int

const (
	// StateStopped indicates no engine is running.
	StateStopped State = iota
	// StateRunning indicates a live engine process.
	StateRunning
	// StateBroken indicates the configuration could not be loaded.
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// WithProber replaces the process liveness probe.
func WithProber(p process.Prober) Option {
	return func(m *Manager) { m.prober = p }
}

// WithBuilder replaces the invocation builder.
func WithBuilder(b *qemu.Builder) Option {
	return func(m *Manager) { m.builder = b }
}

// WithSpawner replaces the engine spawner.
func WithSpawner(s qemu.Spawner) Option {
	return func(m *Manager) { m.spawner = s }
}

// WithProvisioner replaces the disk provisioner.
func WithProvisioner(p disk.Provisioner) Option {
	return func(m *Manager) { m.provisioner = p }
}

// WithFirmwareLocator replaces firmware discovery at create time.
func WithFirmwareLocator(f func(api.Arch) (api.Firmware, error)) Option {
	return func(m *Manager) { m.locateFirmware = f }
}

// WithStopTimeout sets the SIGTERM grace period.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) { m.stopTimeout = d }
}

// WithPollInterval sets how often liveness is rechecked while stopping.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithSignaler replaces signal delivery.
func WithSignaler(f func(pid int, sig syscall.Signal) error) Option {
	return func(m *Manager) { m.signal = f }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the VMs under one home directory. It keeps no state between
// calls; everything is read back from disk and the pid records.
type Manager struct {
	home string
	log  logrus.FieldLogger

	prober         process.Prober
	checker        *process.Checker
	builder        *qemu.Builder
	spawner        qemu.Spawner
	provisioner    disk.Provisioner
	locateFirmware func(api.Arch) (api.Firmware, error)
	signal         func(pid int, sig syscall.Signal) error
	now            func() time.Time

	stopTimeout  time.Duration
	pollInterval time.Duration
}

// NewManager returns a Manager for the VMs under home. A relative home is
// taken against the working directory, since vm.json records absolute roots.
func NewManager(home string, opts ...Option) *Manager {
	if abs, err := filepath.Abs(home); err == nil {
		home = abs
	}
	m := &Manager{
		home:           home,
		log:            logrus.StandardLogger(),
		builder:        qemu.NewBuilder(),
		locateFirmware: qemu.LocateFirmware,
		signal:         process.Signal,
		now:            time.Now,
		stopTimeout:    DefaultStopTimeout,
		pollInterval:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.spawner == nil {
		m.spawner = &qemu.ExecSpawner{Log: m.log}
	}
	if m.provisioner == nil {
		m.provisioner = &disk.QemuImg{Log: m.log}
	}
	m.checker = process.NewChecker(m.prober, m.log)
	return m
}

// Home returns the directory holding the VMs.
func (m *Manager) Home() string {
	return m.home
}

// HostArch maps the running architecture to a guest arch.
func HostArch() api.Arch {
	if runtime.GOARCH == "arm64" {
		return api.ArchAArch64
	}
	return api.ArchX86_64
}

// vmDir resolves name to an existing VM directory.
func (m *Manager) vmDir(op, name string) (string, error) {
	if err := paths.ValidateName(name); err != nil {
		return "", &Error{Op: op, VM: name, Kind: ErrValidation, Err: err}
	}
	dir := paths.VMDir(m.home, name)
	fi, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", &Error{Op: op, VM: name, Kind: ErrNotFound, Resource: "vm directory", Path: dir}
	case err != nil:
		return "", &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	case !fi.IsDir():
		return "", &Error{Op: op, VM: name, Kind: ErrNotFound, Resource: "vm directory (not a directory)", Path: dir}
	}
	return dir, nil
}

// lockVM resolves name and takes its directory lock.
func (m *Manager) lockVM(ctx context.Context, op, name string) (string, *lock.Lock, error) {
	dir, err := m.vmDir(op, name)
	if err != nil {
		return "", nil, err
	}
	lk, err := lock.Acquire(ctx, paths.LockPath(dir))
	if err != nil {
		return "", nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	return dir, lk, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
