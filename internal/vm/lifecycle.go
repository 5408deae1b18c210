package vm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qvm-dev/qvm/internal/lock"
	"github.com/qvm-dev/qvm/internal/paths"
	"github.com/qvm-dev/qvm/internal/process"
	"github.com/qvm-dev/qvm/internal/qemu"
	"github.com/qvm-dev/qvm/internal/vmconfig"
)

// StartOptions control one run of a VM.
type StartOptions struct {
	qemu.StartOptions
	// Daemon detaches the engine and returns once it is confirmed running.
	Daemon bool
	// DryRun builds the invocation without spawning anything.
	DryRun bool
}

// StartResult describes a start.
type StartResult struct {
	Invocation *qemu.Invocation
	PID        int
	// Exited is set in foreground mode once the engine has exited.
	Exited bool
}

// Start launches the VM engine. In foreground mode it returns after the
// engine exits; with Daemon it returns once the engine is up.
func (m *Manager) Start(ctx context.Context, name string, opts StartOptions) (*StartResult, error) {
	const op = "start"
	dir, lk, err := m.lockVM(ctx, op, name)
	if err != nil {
		return nil, err
	}
	defer lk.Release()

	cfg, err := vmconfig.Load(dir)
	if err != nil {
		return nil, wrap(op, name, err)
	}

	st, err := m.checker.Inspect(dir)
	if err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	if st.Running {
		return nil, &Error{Op: op, VM: name, Kind: ErrAlreadyRunning, Err: fmt.Errorf("already running as pid %d", st.Record.PID)}
	}

	if opts.Daemon && opts.Console == qemu.ConsoleSerial {
		return nil, &Error{Op: op, VM: name, Kind: ErrValidation, Err: errors.New("a serial console cannot be used with --daemon")}
	}

	diskPath := paths.ResolveUnderRoot(cfg.Paths.Root, cfg.Paths.Disk)
	if !exists(diskPath) {
		return nil, &Error{Op: op, VM: name, Kind: ErrNotFound, Resource: "disk image", Path: diskPath}
	}
	if opts.ISO != "" && !exists(opts.ISO) {
		return nil, &Error{Op: op, VM: name, Kind: ErrNotFound, Resource: "boot image", Path: opts.ISO}
	}
	if err := seedEFIVars(cfg); err != nil {
		return nil, wrap(op, name, err)
	}

	inv, err := m.builder.Build(cfg, opts.StartOptions)
	if err != nil {
		return nil, wrap(op, name, err)
	}
	log := m.log.WithField("vm", name)
	for _, s := range inv.Skipped {
		log.Warnf("Skipped %s", s)
	}
	if opts.DryRun {
		return &StartResult{Invocation: inv}, nil
	}

	proc, err := m.spawner.Spawn(ctx, inv, qemu.SpawnOptions{Detach: opts.Daemon, LogPath: paths.LogPath(dir)})
	if err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}

	pid := proc.PID()
	pidPath := paths.PIDPath(dir)
	if err := process.WriteRecord(pidPath, process.Record{PID: pid, Started: m.now()}); err != nil {
		// An untracked engine could never be stopped by name.
		_ = m.signal(pid, syscall.SIGKILL)
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	log.WithField("pid", pid).Info("VM started")

	res := &StartResult{Invocation: inv, PID: pid}
	if opts.Daemon {
		return res, nil
	}

	// Other commands (stop in particular) must be able to take the lock
	// while the engine runs in the foreground.
	if err := lk.Release(); err != nil {
		log.WithError(err).Warn("Failed to release lock")
	}
	waitErr := proc.Wait()
	res.Exited = true

	m.clearRecord(dir, pid, log)
	if waitErr != nil {
		return res, &Error{Op: op, VM: name, Kind: ErrIO, Err: fmt.Errorf("engine exited: %w", waitErr)}
	}
	log.Info("VM exited")
	return res, nil
}

// clearRecord removes the pid record in dir if it still belongs to pid.
func (m *Manager) clearRecord(dir string, pid int, log logrus.FieldLogger) {
	pidPath := paths.PIDPath(dir)
	// A delete --force from another terminal takes the record with the directory.
	if !exists(dir) {
		return
	}
	lk, err := lock.Acquire(context.Background(), paths.LockPath(dir))
	if err != nil {
		if !exists(dir) {
			return
		}
		log.WithError(err).Warn("Failed to lock VM for cleanup")
		return
	}
	defer lk.Release()

	rec, err := process.ReadRecord(pidPath)
	if err != nil || rec.PID != pid {
		return
	}
	if err := process.RemoveRecord(pidPath); err != nil {
		log.WithError(err).Warn("Failed to remove pid record")
	}
}

// StopOptions control a stop.
type StopOptions struct {
	// Force sends SIGKILL if the grace period expires.
	Force bool
	// Timeout overrides the manager's grace period.
	Timeout time.Duration
}

// StopResult describes a stop.
type StopResult struct {
	PID          int
	WasRunning   bool
	StaleRemoved bool
	Killed       bool
}

// Stop terminates the VM engine. A stale pid record is cleaned up and
// counts as success; a VM with no record returns ErrNotRunning.
func (m *Manager) Stop(ctx context.Context, name string, opts StopOptions) (*StopResult, error) {
	const op = "stop"
	dir, lk, err := m.lockVM(ctx, op, name)
	if err != nil {
		return nil, err
	}
	defer lk.Release()

	return m.stopLocked(ctx, op, name, dir, opts)
}

func (m *Manager) stopLocked(ctx context.Context, op, name, dir string, opts StopOptions) (*StopResult, error) {
	st, err := m.checker.Inspect(dir)
	if err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	if !st.Running {
		res := &StopResult{StaleRemoved: st.StaleRemoved}
		if st.StaleRemoved {
			return res, nil
		}
		return res, newError(op, name, ErrNotRunning)
	}

	pid := st.Record.PID
	res := &StopResult{PID: pid, WasRunning: true}
	log := m.log.WithFields(logrus.Fields{"vm": name, "pid": pid})
	pidPath := paths.PIDPath(dir)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = m.stopTimeout
	}

	log.Infof("Stopping VM (grace period %s)", timeout)
	if err := m.signal(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return res, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}

	if !m.waitExit(ctx, pid, timeout) {
		if !opts.Force {
			return res, &Error{Op: op, VM: name, Kind: ErrVMRunning,
				Err: fmt.Errorf("pid %d did not exit within %s; use --force to kill it", pid, timeout)}
		}
		log.Warn("Grace period expired, killing VM")
		if err := m.signal(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return res, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
		}
		res.Killed = true
		if !m.waitExit(ctx, pid, killWait) {
			return res, &Error{Op: op, VM: name, Kind: ErrIO, Err: fmt.Errorf("pid %d survived SIGKILL", pid)}
		}
	}

	if err := process.RemoveRecord(pidPath); err != nil {
		return res, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	log.Info("VM stopped")
	return res, nil
}

// waitExit polls until pid is gone, timeout passes or ctx is done. It
// reports whether the process exited.
func (m *Manager) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		if !m.checker.IsAlive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !m.checker.IsAlive(pid)
		case <-ticker.C:
		}
	}
}

// Delete removes the VM directory. A running VM is refused unless force is
// set, in which case it is stopped first.
func (m *Manager) Delete(ctx context.Context, name string, force bool) error {
	const op = "delete"
	dir, lk, err := m.lockVM(ctx, op, name)
	if err != nil {
		return err
	}
	defer lk.Release()

	running, err := m.checker.IsRunning(dir)
	if err != nil {
		return &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	if running {
		if !force {
			return &Error{Op: op, VM: name, Kind: ErrVMRunning, Err: errors.New("vm is running; stop it first or use --force")}
		}
		if _, err := m.stopLocked(ctx, op, name, dir, StopOptions{Force: true}); err != nil {
			m.log.WithError(err).WithField("vm", name).Warn("Forced stop failed, deleting anyway")
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	m.log.WithFields(logrus.Fields{"vm": name, "dir": dir}).Info("VM deleted")
	return nil
}
