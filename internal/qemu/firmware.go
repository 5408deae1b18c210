package qemu

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

// Well-known share directories: nix profiles, then distro and Homebrew
// prefixes.
var systemShareDirs = []string{
	"/run/current-system/sw/share/qemu",
	"/nix/var/nix/profiles/system/sw/share/qemu",
	"/usr/share/qemu",
	"/opt/homebrew/share/qemu",
	"/usr/local/share/qemu",
}

const nixStoreGlob = "/nix/store/*-qemu-*/share/qemu"

// FirmwareSearchDirs lists candidate share directories, most specific first:
// the one next to the resolved emulator binary, then system locations.
func FirmwareSearchDirs(binPath string) []string {
	var dirs []string
	if binPath != "" {
		if real, err := filepath.EvalSymlinks(binPath); err == nil {
			binPath = real
		}
		dirs = append(dirs, filepath.Join(filepath.Dir(filepath.Dir(binPath)), "share", "qemu"))
	}
	dirs = append(dirs, systemShareDirs...)
	if matches, err := filepath.Glob(nixStoreGlob); err == nil {
		dirs = append(dirs, matches...)
	}
	return dirs
}

// FindFirmware returns the first pair whose both files exist in one of dirs.
func FindFirmware(dirs []string, pairs []vmconfig.FirmwarePair) (api.Firmware, error) {
	for _, dir := range dirs {
		for _, p := range pairs {
			code := filepath.Join(dir, p.Code)
			vars := filepath.Join(dir, p.Vars)
			if isFile(code) && isFile(vars) {
				return api.Firmware{Code: code, VarsTemplate: vars}, nil
			}
		}
	}
	return api.Firmware{}, fmt.Errorf("%w: no UEFI code/vars pair in %v", ErrFirmwareNotFound, dirs)
}

// LocateFirmware finds UEFI firmware for arch on this host.
func LocateFirmware(arch api.Arch) (api.Firmware, error) {
	defs, err := vmconfig.DefaultsFor(arch)
	if err != nil {
		return api.Firmware{}, err
	}
	bin, _ := exec.LookPath(defs.Binary)
	return FindFirmware(FirmwareSearchDirs(bin), defs.FirmwarePairs)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
