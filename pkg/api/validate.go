package api

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MinMemMB is the smallest guest memory size accepted.
const MinMemMB = 128

// ValidationError reports the first field of a VMConfig that breaks an invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration. It returns a *ValidationError naming
// the first offending field.
func (c *VMConfig) Validate() error {
	if c.Meta.Version < 1 || c.Meta.Version > SchemaVersion {
		return invalid("meta.version", "unsupported version %d", c.Meta.Version)
	}
	if c.Meta.Name == "" {
		return invalid("meta.name", "must not be empty")
	}
	if arch, err := ParseArch(string(c.Meta.Arch)); err != nil || arch != c.Meta.Arch {
		return invalid("meta.arch", "unsupported arch %q", c.Meta.Arch)
	}
	if _, err := uuid.Parse(c.Meta.UUID); err != nil {
		return invalid("meta.uuid", "%v", err)
	}

	if err := c.Paths.validate(); err != nil {
		return err
	}
	if err := c.Hardware.validate(); err != nil {
		return err
	}

	if c.Firmware.Code == "" {
		return invalid("firmware.code", "must not be empty")
	}
	if c.Firmware.VarsTemplate == "" {
		return invalid("firmware.vars_template", "must not be empty")
	}

	if err := c.Network.validate(); err != nil {
		return err
	}
	return c.Display.validate()
}

func (p Paths) validate() error {
	if !filepath.IsAbs(p.Root) {
		return invalid("paths.root", "must be an absolute path, got %q", p.Root)
	}
	for _, f := range []struct{ field, path string }{
		{"paths.disk", p.Disk},
		{"paths.efi_vars", p.EFIVars},
	} {
		if f.path == "" {
			return invalid(f.field, "must not be empty")
		}
		if err := underRoot(f.field, f.path); err != nil {
			return err
		}
	}
	return nil
}

// underRoot rejects relative paths that resolve outside the VM directory.
func underRoot(field, path string) error {
	if !filepath.IsAbs(path) && !filepath.IsLocal(path) {
		return invalid(field, "relative path %q escapes the VM directory", path)
	}
	return nil
}

func (h Hardware) validate() error {
	if h.CPUModel == "" {
		return invalid("hardware.cpu_model", "must not be empty")
	}
	if h.Sockets < 1 {
		return invalid("hardware.sockets", "must be at least 1")
	}
	if h.Cores < 1 {
		return invalid("hardware.cores", "must be at least 1")
	}
	if h.Threads < 1 {
		return invalid("hardware.threads", "must be at least 1")
	}
	if h.MemMB < MinMemMB {
		return invalid("hardware.mem_mb", "must be at least %d, got %d", MinMemMB, h.MemMB)
	}
	if h.Machine == "" {
		return invalid("hardware.machine", "must not be empty")
	}
	if h.Accel == "" {
		return invalid("hardware.accel", "must not be empty")
	}
	if hw, err := net.ParseMAC(h.MAC); err != nil || len(hw) != 6 {
		return invalid("hardware.mac", "%q is not a 48-bit MAC address", h.MAC)
	}
	return nil
}

func (n Network) validate() error {
	switch b := n.Backend.(type) {
	case nil:
		return invalid("network.mode", "must be set")
	case BridgedNetwork:
		if b.Interface == "" {
			return invalid("network.bridge_if", "is required in %s mode", NetworkBridged)
		}
	}
	for name, f := range n.Forwards {
		field := "network.forwards." + name
		if name == "" || strings.ContainsAny(name, ",=") {
			return invalid("network.forwards", "bad forward name %q", name)
		}
		if f.Proto != "tcp" && f.Proto != "udp" {
			return invalid(field, "proto must be tcp or udp, got %q", f.Proto)
		}
		if f.Guest == 0 {
			return invalid(field, "guest port must be set")
		}
	}
	return nil
}

func (d Display) validate() error {
	switch b := d.Backend.(type) {
	case nil:
		return invalid("display.mode", "must be set")
	case VNCDisplay:
		if b.UseUnix && b.Sock == "" {
			return invalid("display.vnc.sock", "is required when use_unix is set")
		}
		if b.Sock != "" {
			if err := underRoot("display.vnc.sock", b.Sock); err != nil {
				return err
			}
		}
		if !b.UseUnix && b.Host == "" {
			return invalid("display.vnc.host", "must not be empty")
		}
	case SpiceDisplay:
		if b.UseUnix && b.Sock == "" {
			return invalid("display.spice.sock", "is required when use_unix is set")
		}
		if b.Sock != "" {
			if err := underRoot("display.spice.sock", b.Sock); err != nil {
				return err
			}
		}
		if !b.UseUnix && (b.Addr == "" || b.Port == 0) {
			return invalid("display.spice", "addr and port are required for TCP")
		}
	}
	return nil
}
