package vm

import (
	"context"

	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

// SetResult is the outcome of a configuration change.
type SetResult struct {
	Config *api.VMConfig
	// LiveUnaffected is set when the VM is running: the change applies from
	// the next start.
	LiveUnaffected bool
}

// SetDisplay changes the persisted display settings.
func (m *Manager) SetDisplay(ctx context.Context, name string, u vmconfig.DisplayUpdate) (*SetResult, error) {
	return m.update(ctx, "set-display", name, func(cfg *api.VMConfig) error {
		return vmconfig.ApplyDisplay(cfg, u)
	})
}

// SetNetwork changes the persisted network settings.
func (m *Manager) SetNetwork(ctx context.Context, name string, u vmconfig.NetworkUpdate) (*SetResult, error) {
	return m.update(ctx, "set-network", name, func(cfg *api.VMConfig) error {
		return vmconfig.ApplyNetwork(cfg, u)
	})
}

// update is read-modify-validate-write under the VM lock. On any error the
// file on disk is unchanged.
func (m *Manager) update(ctx context.Context, op, name string, mutate func(*api.VMConfig) error) (*SetResult, error) {
	dir, lk, err := m.lockVM(ctx, op, name)
	if err != nil {
		return nil, err
	}
	defer lk.Release()

	cfg, err := vmconfig.Load(dir)
	if err != nil {
		return nil, wrap(op, name, err)
	}
	if err := mutate(cfg); err != nil {
		return nil, wrap(op, name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, wrap(op, name, err)
	}
	if err := vmconfig.Save(cfg); err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}

	running, err := m.checker.IsRunning(dir)
	if err != nil {
		m.log.WithError(err).WithField("vm", name).Warn("Could not determine whether the VM is running")
	}
	if running {
		m.log.WithField("vm", name).Info("VM is running; the change takes effect on next start")
	}
	return &SetResult{Config: cfg, LiveUnaffected: running}, nil
}
