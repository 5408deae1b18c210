package vmconfig

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qvm-dev/qvm/pkg/api"
)

func newTestConfig(t *testing.T, dir string) *api.VMConfig {
	t.Helper()
	cfg, err := New(dir, Options{Name: "vm1", Arch: api.ArchAArch64}, testFirmware, testIdentity)
	require.NoError(t, err)
	return cfg
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	cfg.Display = api.Display{Backend: api.DefaultVNC()}
	cfg.Network = api.Network{
		Backend:  api.UserNetwork{},
		Forwards: map[string]api.PortForward{"ssh": {Proto: "tcp", Host: 2222, Guest: 22}},
	}

	require.NoError(t, Save(cfg))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
	assert.Equal(t, "vm.json", entries[0].Name())
}

func TestSaveLoadEmptyForwards(t *testing.T) {
	dir := t.TempDir()
	cfg, err := New(dir, Options{
		Name:    "vm1",
		Arch:    api.ArchAArch64,
		Network: api.Network{Backend: api.UserNetwork{}, Forwards: map[string]api.PortForward{}},
	}, testFirmware, testIdentity)
	require.NoError(t, err)
	assert.Nil(t, cfg.Network.Forwards)

	cfg.Network.Forwards = map[string]api.PortForward{}
	require.NoError(t, ApplyNetwork(cfg, NetworkUpdate{Mode: api.NetworkUser}))
	assert.Nil(t, cfg.Network.Forwards)

	require.NoError(t, Save(cfg))
	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadResetsRootAfterMove(t *testing.T) {
	base := t.TempDir()
	old := filepath.Join(base, "old.qvm")
	require.NoError(t, os.Mkdir(old, 0o755))
	require.NoError(t, Save(newTestConfig(t, old)))

	moved := filepath.Join(base, "new.qvm")
	require.NoError(t, os.Rename(old, moved))

	cfg, err := Load(moved)
	require.NoError(t, err)
	assert.Equal(t, moved, cfg.Paths.Root)
}

func TestLoadErrors(t *testing.T) {
	valid, err := json.Marshal(newTestConfig(t, "/somewhere"))
	require.NoError(t, err)

	withMeta := func(mutate func(meta map[string]any)) string {
		var d map[string]any
		require.NoError(t, json.Unmarshal(valid, &d))
		mutate(d["meta"].(map[string]any))
		out, err := json.Marshal(d)
		require.NoError(t, err)
		return string(out)
	}

	tests := []struct {
		name    string
		content *string
		want    error
		errMsg  string
	}{
		{name: "missing", want: ErrNotFound},
		{name: "truncated", content: ptr(`{"meta": {`), want: ErrParse},
		{name: "not json", content: ptr(`hello`), want: ErrParse},
		{name: "newer version", content: ptr(withMeta(func(m map[string]any) { m["version"] = 2 })), want: ErrSchema, errMsg: "newer than supported"},
		{name: "no version", content: ptr(withMeta(func(m map[string]any) { delete(m, "version") })), want: ErrSchema, errMsg: "meta.version is missing"},
		{name: "wrong type", content: ptr(withMeta(func(m map[string]any) { m["name"] = 7 })), want: ErrSchema},
		{name: "bad display", content: ptr(`{"meta":{"version":1},"display":{"mode":"sdl"},"network":{"mode":"user"}}`), want: ErrSchema, errMsg: "sdl"},
		{name: "missing fields", content: ptr(`{"meta":{"version":1},"display":{"mode":"cocoa"},"network":{"mode":"user"}}`), want: ErrSchema, errMsg: "invalid meta.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != nil {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "vm.json"), []byte(*tt.content), 0o644))
			}

			_, err := Load(dir)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Contains(t, err.Error(), filepath.Join(dir, "vm.json"))
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestLoadSchemaErrorCarriesValidation(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	cfg.Hardware.Sockets = 0
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vm.json"), data, 0o644))

	_, err = Load(dir)
	require.ErrorIs(t, err, ErrSchema)
	var ve *api.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "hardware.sockets", ve.Field)
}

func TestSaveKeepsOldFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(t, dir)
	require.NoError(t, Save(cfg))
	before, err := os.ReadFile(filepath.Join(dir, "vm.json"))
	require.NoError(t, err)

	bad := *cfg
	bad.Display = api.Display{}
	require.Error(t, Save(&bad))

	after, err := os.ReadFile(filepath.Join(dir, "vm.json"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func ptr(s string) *string { return &s }
