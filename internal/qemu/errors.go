package qemu

import "errors"

var (
	// ErrBinaryNotFound means the emulator for the guest arch is not installed.
	ErrBinaryNotFound = errors.New("qemu binary not found")
	// ErrFirmwareNotFound means a UEFI image or variable store is missing.
	ErrFirmwareNotFound = errors.New("firmware not found")
)
