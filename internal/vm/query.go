package vm

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/qvm-dev/qvm/internal/paths"
	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

// Summary is the observed state of one VM.
type Summary struct {
	Name    string
	Dir     string
	State   State
	PID     int
	Started time.Time
	// Config is nil when State is StateBroken; Err says why.
	Config *api.VMConfig
	Err    error
}

// Status reports on one VM.
func (m *Manager) Status(ctx context.Context, name string) (*Summary, error) {
	const op = "status"
	dir, lk, err := m.lockVM(ctx, op, name)
	if err != nil {
		return nil, err
	}
	defer lk.Release()

	return m.summarize(op, name, dir)
}

func (m *Manager) summarize(op, name, dir string) (*Summary, error) {
	s := &Summary{Name: name, Dir: dir, State: StateStopped}

	cfg, err := vmconfig.Load(dir)
	if err != nil {
		s.State = StateBroken
		s.Err = wrap(op, name, err)
	}
	s.Config = cfg

	st, err := m.checker.Inspect(dir)
	if err != nil {
		return nil, &Error{Op: op, VM: name, Kind: ErrIO, Err: err}
	}
	if st.Running {
		s.State = StateRunning
		s.PID = st.Record.PID
		s.Started = st.Record.Started
	}
	return s, nil
}

// List reports on every VM under the home directory, sorted by name. A
// missing home directory means no VMs.
func (m *Manager) List(ctx context.Context) ([]*Summary, error) {
	entries, err := os.ReadDir(m.home)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "list", VM: "*", Kind: ErrIO, Err: err}
	}

	var out []*Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, ok := paths.NameFromDir(e.Name())
		if !ok || paths.ValidateName(name) != nil {
			continue
		}
		s, err := m.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Config loads the configuration of one VM.
func (m *Manager) Config(name string) (*api.VMConfig, error) {
	const op = "inspect"
	dir, err := m.vmDir(op, name)
	if err != nil {
		return nil, err
	}
	cfg, err := vmconfig.Load(dir)
	if err != nil {
		return nil, wrap(op, name, err)
	}
	return cfg, nil
}
