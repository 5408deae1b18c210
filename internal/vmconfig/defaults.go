package vmconfig

import (
	"fmt"

	"github.com/qvm-dev/qvm/pkg/api"
)

const (
	DefaultDisk    = "disk.qcow2"
	DefaultEFIVars = "efi_vars.fd"
	DefaultCPU     = "host"
	DefaultMemMB   = 4096
	DefaultCores   = 4
)

// FirmwarePair is a UEFI code image and the variable store that goes with it.
type FirmwarePair struct {
	Code string
	Vars string
}

// ArchDefaults holds everything that differs between guest architectures.
type ArchDefaults struct {
	Binary  string
	Machine string
	Accel   string
	// FirmwarePairs are candidate file names, most preferred first.
	FirmwarePairs []FirmwarePair
	// Fallback is used when no pair is found on disk at create time.
	Fallback api.Firmware
}

const fallbackShare = "/run/current-system/sw/share/qemu"

var archDefaults = map[api.Arch]ArchDefaults{
	api.ArchAArch64: {
		Binary:  "qemu-system-aarch64",
		Machine: "virt,gic-version=3",
		Accel:   "hvf",
		FirmwarePairs: []FirmwarePair{
			{Code: "edk2-aarch64-code.fd", Vars: "edk2-arm-vars.fd"},
			{Code: "edk2-aarch64-code.fd", Vars: "edk2-aarch64-vars.fd"},
		},
		Fallback: api.Firmware{
			Code:         fallbackShare + "/edk2-aarch64-code.fd",
			VarsTemplate: fallbackShare + "/edk2-arm-vars.fd",
		},
	},
	api.ArchX86_64: {
		Binary:  "qemu-system-x86_64",
		Machine: "q35",
		Accel:   "kvm",
		FirmwarePairs: []FirmwarePair{
			{Code: "OVMF_CODE.fd", Vars: "OVMF_VARS.fd"},
			{Code: "edk2-x86_64-code.fd", Vars: "edk2-x86_64-vars.fd"},
			{Code: "edk2-x86_64-code.fd", Vars: "edk2-i386-vars.fd"},
		},
		Fallback: api.Firmware{
			Code:         fallbackShare + "/OVMF_CODE.fd",
			VarsTemplate: fallbackShare + "/OVMF_VARS.fd",
		},
	},
}

// DefaultsFor returns the defaults table entry for arch.
func DefaultsFor(arch api.Arch) (ArchDefaults, error) {
	d, ok := archDefaults[arch]
	if !ok {
		return ArchDefaults{}, fmt.Errorf("unsupported arch %q", arch)
	}
	return d, nil
}

// CPUModel maps a requested CPU model onto one the arch can run. "host" is
// only passed through on aarch64; x86_64 guests get the portable qemu64.
func CPUModel(arch api.Arch, requested string) string {
	if requested == "" {
		requested = DefaultCPU
	}
	if arch == api.ArchX86_64 && requested == "host" {
		return "qemu64"
	}
	return requested
}
