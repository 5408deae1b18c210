// Package api defines the persisted qvm VM configuration document (vm.json).
package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion is the newest vm.json layout this build understands.
const SchemaVersion = 1

// Arch is a guest CPU architecture.
type Arch string

const (
	ArchAArch64 Arch = "aarch64"
	ArchX86_64  Arch = "x86_64"
)

// ParseArch normalises an architecture name. The Go-style aliases arm64 and
// amd64 are accepted.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aarch64", "arm64":
		return ArchAArch64, nil
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	}
	return "", fmt.Errorf("unsupported arch %q (expected aarch64 or x86_64)", s)
}

// VMConfig is the full vm.json document.
type VMConfig struct {
	Meta     Meta     `json:"meta"`
	Paths    Paths    `json:"paths"`
	Hardware Hardware `json:"hardware"`
	Firmware Firmware `json:"firmware"`
	Network  Network  `json:"network"`
	Display  Display  `json:"display"`

	// Extra holds top-level keys written by other tools or newer
	// versions. They are carried through a load/save cycle untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// Meta identifies the document and the VM.
type Meta struct {
	Version   int    `json:"version"`
	Generated string `json:"generated"`
	Name      string `json:"name"`
	Arch      Arch   `json:"arch"`
	UUID      string `json:"uuid"`
}

// Paths locates the VM's files. Disk and EFIVars may be relative to Root.
type Paths struct {
	Root    string `json:"root"`
	Disk    string `json:"disk"`
	EFIVars string `json:"efi_vars"`
}

// Hardware is the virtual hardware shape.
type Hardware struct {
	CPUModel string `json:"cpu_model"`
	Sockets  uint32 `json:"sockets"`
	Cores    uint32 `json:"cores"`
	Threads  uint32 `json:"threads"`
	MemMB    uint32 `json:"mem_mb"`
	Machine  string `json:"machine"`
	Accel    string `json:"accel"`
	MAC      string `json:"mac"`
}

// VCPUs returns the total number of virtual CPUs.
func (h Hardware) VCPUs() uint32 {
	return h.Sockets * h.Cores * h.Threads
}

// Firmware points at the UEFI code image and the pristine variable store
// that per-VM efi_vars are seeded from.
type Firmware struct {
	Code         string `json:"code"`
	VarsTemplate string `json:"vars_template"`
}

// topLevelKeys are the keys owned by VMConfig's typed fields.
var topLevelKeys = []string{"meta", "paths", "hardware", "firmware", "network", "display"}

// vmConfigFields has VMConfig's layout without its JSON methods.
type vmConfigFields VMConfig

// MarshalJSON writes the typed sections and merges Extra back in.
func (c VMConfig) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(vmConfigFields(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(topLevelKeys)+len(c.Extra))
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the typed sections and keeps unknown keys in Extra.
func (c *VMConfig) UnmarshalJSON(data []byte) error {
	var fields vmConfigFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range topLevelKeys {
		delete(raw, k)
	}

	*c = VMConfig(fields)
	c.Extra = nil
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}
