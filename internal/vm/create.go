package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/qvm-dev/qvm/internal/disk"
	"github.com/qvm-dev/qvm/internal/lock"
	"github.com/qvm-dev/qvm/internal/paths"
	"github.com/qvm-dev/qvm/internal/qemu"
	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

// CreateRequest describes a new VM.
type CreateRequest struct {
	vmconfig.Options
	// DiskSize, when set, provisions an empty disk image of that size
	// (e.g. "64G") unless the disk already exists.
	DiskSize string
}

// Create makes the VM directory, provisions its disk and EFI variable
// store, and writes vm.json. A failed create leaves nothing behind.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*api.VMConfig, error) {
	const op = "create"
	name := req.Name

	if err := paths.ValidateName(name); err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrValidation, Err: err}
	}
	if req.Arch == "" {
		req.Arch = HostArch()
	}
	var size int64
	if req.DiskSize != "" {
		n, err := disk.ParseSize(req.DiskSize)
		if err != nil {
			return nil, &Error{Op: op, VM: name, Kind: ErrValidation, Err: err}
		}
		size = n
	}

	dir := paths.VMDir(m.home, name)
	fw, err := m.firmwareFor(req.Arch)
	if err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrValidation, Err: err}
	}
	id, err := vmconfig.NewIdentity(m.now())
	if err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	cfg, err := vmconfig.New(dir, req.Options, fw, id)
	if err != nil {
		return nil, wrap(op, name, err)
	}

	if err := os.MkdirAll(m.home, 0o755); err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	// Mkdir is the existence check: it fails if another create won the race.
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, &Error{Op: op, VM: name, Kind: ErrAlreadyExists, Resource: "vm directory", Path: dir}
		}
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}

	created := false
	defer func() {
		if !created {
			if err := os.RemoveAll(dir); err != nil {
				m.log.WithError(err).Warnf("Failed to clean up %s", dir)
			}
		}
	}()

	lk, err := lock.Acquire(ctx, paths.LockPath(dir))
	if err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	defer lk.Release()

	log := m.log.WithFields(logrus.Fields{"vm": name, "dir": dir})

	diskPath := paths.ResolveUnderRoot(dir, cfg.Paths.Disk)
	switch {
	case size > 0:
		if err := m.provisioner.Provision(ctx, diskPath, size); err != nil {
			return nil, &Error{Op: op, VM: name, Kind: kindOf(err), Resource: "disk image", Path: diskPath, Err: err}
		}
	case !exists(diskPath):
		log.Warnf("No disk image at %s; create one before starting the VM", diskPath)
	}

	if err := seedEFIVars(cfg); err != nil {
		if !errors.Is(err, qemu.ErrFirmwareNotFound) {
			return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
		}
		log.WithError(err).Warn("EFI variable store not seeded; start will retry")
	}

	if err := vmconfig.Save(cfg); err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	created = true

	log.WithFields(logrus.Fields{
		"arch":  cfg.Meta.Arch,
		"vcpus": cfg.Hardware.VCPUs(),
		"mem":   cfg.Hardware.MemMB,
	}).Info("VM created")
	return cfg, nil
}

// firmwareFor locates firmware for arch, falling back to the well-known
// default paths when discovery finds nothing.
func (m *Manager) firmwareFor(arch api.Arch) (api.Firmware, error) {
	defs, err := vmconfig.DefaultsFor(arch)
	if err != nil {
		return api.Firmware{}, err
	}
	fw, err := m.locateFirmware(arch)
	if err != nil {
		m.log.WithError(err).Warnf("Using default firmware paths for %s", arch)
		return defs.Fallback, nil
	}
	return fw, nil
}

// seedEFIVars copies the firmware variable template to the VM's efi_vars
// file if it does not exist yet.
func seedEFIVars(cfg *api.VMConfig) error {
	dst := paths.ResolveUnderRoot(cfg.Paths.Root, cfg.Paths.EFIVars)
	if exists(dst) {
		return nil
	}

	src, err := os.Open(cfg.Firmware.VarsTemplate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", qemu.ErrFirmwareNotFound, cfg.Firmware.VarsTemplate)
		}
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy %s: %w", cfg.Firmware.VarsTemplate, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
