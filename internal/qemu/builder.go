// Package qemu turns a VM configuration into an emulator invocation and runs it.
package qemu

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/qvm-dev/qvm/internal/paths"
	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

// Console selects where the guest console goes.
type Console string

const (
	ConsoleGUI    Console = "gui"
	ConsoleSerial Console = "serial"
)

// ParseConsole validates a console name. Empty means gui.
func ParseConsole(s string) (Console, error) {
	switch c := Console(s); c {
	case "", ConsoleGUI:
		return ConsoleGUI, nil
	case ConsoleSerial:
		return c, nil
	}
	return "", fmt.Errorf("unknown console %q (expected gui or serial)", s)
}

// StartOptions are per-run overrides. They are never persisted.
type StartOptions struct {
	// ISO attaches a boot image and boots from it first.
	ISO string
	// Display overrides the configured display mode for this run.
	Display api.DisplayMode
	Console Console
}

// Invocation is a complete emulator command line.
type Invocation struct {
	Binary string
	Args   []string
	// Skipped lists configured items that were left out, with the reason.
	Skipped []string
}

// String renders the command line for a shell.
func (i *Invocation) String() string {
	return shellquote.Join(append([]string{i.Binary}, i.Args...)...)
}

// Builder assembles invocations. LookPath and Stat are replaceable for tests.
type Builder struct {
	LookPath func(file string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

// NewBuilder returns a Builder backed by the real PATH and filesystem.
func NewBuilder() *Builder {
	return &Builder{LookPath: exec.LookPath, Stat: os.Stat}
}

// Build produces the invocation for cfg. The argument order is fixed so that
// equal inputs give identical command lines.
func (b *Builder) Build(cfg *api.VMConfig, opts StartOptions) (*Invocation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	console, err := ParseConsole(string(opts.Console))
	if err != nil {
		return nil, err
	}

	defs, err := vmconfig.DefaultsFor(cfg.Meta.Arch)
	if err != nil {
		return nil, err
	}
	bin, err := b.LookPath(defs.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, defs.Binary, err)
	}

	root := cfg.Paths.Root
	efiVars := paths.ResolveUnderRoot(root, cfg.Paths.EFIVars)
	for _, fw := range []string{cfg.Firmware.Code, efiVars} {
		if _, err := b.Stat(fw); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFirmwareNotFound, fw)
		}
	}

	display := cfg.Display.Backend
	if opts.Display != "" {
		if display, err = cfg.Display.ForMode(opts.Display); err != nil {
			return nil, err
		}
	}

	inv := &Invocation{Binary: bin}
	hw := cfg.Hardware
	inv.add("-name", cfg.Meta.Name)
	inv.add("-uuid", cfg.Meta.UUID)
	inv.add("-machine", hw.Machine)
	inv.add("-accel", hw.Accel)
	inv.add("-cpu", hw.CPUModel)
	inv.add("-smp", fmt.Sprintf("sockets=%d,cores=%d,threads=%d", hw.Sockets, hw.Cores, hw.Threads))
	inv.add("-m", fmt.Sprint(hw.MemMB))
	inv.add("-drive", "if=pflash,format=raw,readonly=on,file="+cfg.Firmware.Code)
	inv.add("-drive", "if=pflash,format=raw,file="+efiVars)

	disk := paths.ResolveUnderRoot(root, cfg.Paths.Disk)
	inv.add("-drive", fmt.Sprintf("file=%s,if=virtio,format=%s", disk, diskFormat(disk)))

	inv.addNetwork(cfg.Network, hw.MAC)
	inv.addDisplay(display, root)

	if console == ConsoleSerial {
		inv.add("-serial", "mon:stdio")
	}
	if opts.ISO != "" {
		inv.add("-drive", fmt.Sprintf("file=%s,media=cdrom,readonly=on", opts.ISO))
		inv.add("-boot", "order=dc")
	}
	return inv, nil
}

func (i *Invocation) add(args ...string) {
	i.Args = append(i.Args, args...)
}

func (i *Invocation) addNetwork(n api.Network, mac string) {
	var names []string
	for name := range n.Forwards {
		names = append(names, name)
	}
	slices.Sort(names)

	switch b := n.Backend.(type) {
	case api.SharedNetwork:
		i.add("-netdev", "vmnet-shared,id=net0")
	case api.BridgedNetwork:
		i.add("-netdev", "vmnet-bridged,id=net0,ifname="+b.Interface)
	case api.UserNetwork:
		netdev := "user,id=net0"
		for _, name := range names {
			f := n.Forwards[name]
			if f.Host == 0 {
				i.Skipped = append(i.Skipped, fmt.Sprintf("forward %s: host port is 0", name))
				continue
			}
			netdev += fmt.Sprintf(",hostfwd=%s::%d-:%d", f.Proto, f.Host, f.Guest)
		}
		i.add("-netdev", netdev)
		names = nil
	}
	for _, name := range names {
		i.Skipped = append(i.Skipped, fmt.Sprintf("forward %s: only applies in %s mode", name, api.NetworkUser))
	}
	i.add("-device", "virtio-net-pci,netdev=net0,mac="+mac)
}

func (i *Invocation) addDisplay(d api.DisplayBackend, root string) {
	switch b := d.(type) {
	case api.CocoaDisplay:
		i.add("-display", "cocoa")
	case api.HeadlessDisplay:
		i.add("-display", "none")
	case api.VNCDisplay:
		i.add("-display", "none")
		if b.UseUnix {
			i.add("-vnc", "unix:"+paths.ResolveUnderRoot(root, b.Sock))
		} else {
			i.add("-vnc", fmt.Sprintf("%s:%d", b.Host, b.Display))
		}
	case api.SpiceDisplay:
		i.add("-display", "none")
		var spice string
		if b.UseUnix {
			spice = "unix=on,addr=" + paths.ResolveUnderRoot(root, b.Sock)
		} else {
			spice = fmt.Sprintf("port=%d,addr=%s", b.Port, b.Addr)
		}
		if b.DisableTicketing {
			spice += ",disable-ticketing=on"
		}
		i.add("-spice", spice)
	}
}

// diskFormat guesses the image format from the file extension.
func diskFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".raw", ".img":
		return "raw"
	}
	return "qcow2"
}
