package vmconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qvm-dev/qvm/internal/paths"
	"github.com/qvm-dev/qvm/pkg/api"
)

// Load reads dir/vm.json. Root is reset to dir so that a VM directory can be
// moved or renamed without editing its configuration.
func Load(dir string) (*api.VMConfig, error) {
	path := paths.ConfPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if !json.Valid(data) {
		var probe any
		err := json.Unmarshal(data, &probe)
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	var header struct {
		Meta struct {
			Version *int `json:"version"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchema, path, err)
	}
	switch v := header.Meta.Version; {
	case v == nil:
		return nil, fmt.Errorf("%w: %s: meta.version is missing", ErrSchema, path)
	case *v > api.SchemaVersion:
		return nil, fmt.Errorf("%w: %s: version %d is newer than supported version %d", ErrSchema, path, *v, api.SchemaVersion)
	case *v < 1:
		return nil, fmt.Errorf("%w: %s: invalid version %d", ErrSchema, path, *v)
	}

	var cfg api.VMConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchema, path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	cfg.Paths.Root = abs

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchema, path, err)
	}
	return &cfg, nil
}

// Save validates cfg and writes it to <root>/vm.json atomically: a reader
// sees either the old document or the new one, never a partial write.
func Save(cfg *api.VMConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	data = append(data, '\n')

	dir := cfg.Paths.Root
	path := paths.ConfPath(dir)

	tmp, err := os.CreateTemp(dir, paths.ConfFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
