package qemu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestFindFirmwarePrefersEarlierDirsAndPairs(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	defs, err := vmconfig.DefaultsFor(api.ArchAArch64)
	require.NoError(t, err)

	// Only the second pair is complete in the first dir.
	touch(t, filepath.Join(first, "edk2-aarch64-code.fd"))
	touch(t, filepath.Join(first, "edk2-aarch64-vars.fd"))
	touch(t, filepath.Join(second, "edk2-aarch64-code.fd"))
	touch(t, filepath.Join(second, "edk2-arm-vars.fd"))

	fw, err := FindFirmware([]string{first, second}, defs.FirmwarePairs)
	require.NoError(t, err)
	assert.Equal(t, api.Firmware{
		Code:         filepath.Join(first, "edk2-aarch64-code.fd"),
		VarsTemplate: filepath.Join(first, "edk2-aarch64-vars.fd"),
	}, fw)
}

func TestFindFirmwareMissing(t *testing.T) {
	defs, err := vmconfig.DefaultsFor(api.ArchX86_64)
	require.NoError(t, err)

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "OVMF_CODE.fd"))

	_, err = FindFirmware([]string{dir}, defs.FirmwarePairs)
	assert.ErrorIs(t, err, ErrFirmwareNotFound)
}

func TestFirmwareSearchDirsFollowsBinary(t *testing.T) {
	prefix := t.TempDir()
	bin := filepath.Join(prefix, "bin", "qemu-system-aarch64")
	touch(t, bin)

	link := filepath.Join(t.TempDir(), "qemu-system-aarch64")
	require.NoError(t, os.Symlink(bin, link))

	dirs := FirmwareSearchDirs(link)
	require.NotEmpty(t, dirs)
	real, err := filepath.EvalSymlinks(prefix)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(real, "share", "qemu"), dirs[0])
	assert.Contains(t, dirs, "/run/current-system/sw/share/qemu")

	assert.Equal(t, systemShareDirs, FirmwareSearchDirs("")[:len(systemShareDirs)])
}
