// Package vmconfig builds, mutates and persists VM configuration documents.
package vmconfig

import (
	"crypto/rand"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qvm-dev/qvm/pkg/api"
)

// Options are the user-facing choices for a new VM. Zero values take the
// defaults of the arch.
type Options struct {
	Name     string
	Arch     api.Arch
	CPUModel string

	// SMP sets the core count when no explicit topology is given.
	SMP     uint32
	Sockets uint32
	Cores   uint32
	Threads uint32

	MemMB   uint32
	Disk    string
	Network api.Network
	Display api.Display
}

// Identity is the generated part of a new configuration.
type Identity struct {
	UUID      string
	MAC       string
	Generated time.Time
}

// NewIdentity draws a fresh UUID and locally administered MAC.
func NewIdentity(now time.Time) (Identity, error) {
	mac, err := NewMAC(rand.Reader)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UUID: uuid.NewString(), MAC: mac, Generated: now}, nil
}

// NewMAC returns a MAC in the QEMU 52:54:00 prefix with three random bytes.
func NewMAC(r io.Reader) (string, error) {
	var b [3]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", fmt.Errorf("failed to generate MAC: %w", err)
	}
	return fmt.Sprintf("52:54:00:%02x:%02x:%02x", b[0], b[1], b[2]), nil
}

// Topology resolves sockets, cores and threads. Any explicit component wins
// and missing ones become 1; otherwise smp sets the core count; otherwise
// the default is a single socket of DefaultCores cores.
func Topology(smp, sockets, cores, threads uint32) (uint32, uint32, uint32) {
	if sockets != 0 || cores != 0 || threads != 0 {
		return orOne(sockets), orOne(cores), orOne(threads)
	}
	if smp != 0 {
		return 1, smp, 1
	}
	return 1, DefaultCores, 1
}

func orOne(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

// New assembles and validates the configuration of a VM rooted at dir.
func New(dir string, opts Options, fw api.Firmware, id Identity) (*api.VMConfig, error) {
	defs, err := DefaultsFor(opts.Arch)
	if err != nil {
		return nil, &api.ValidationError{Field: "meta.arch", Message: err.Error()}
	}

	sockets, cores, threads := Topology(opts.SMP, opts.Sockets, opts.Cores, opts.Threads)

	mem := opts.MemMB
	if mem == 0 {
		mem = DefaultMemMB
	}
	disk := opts.Disk
	if disk == "" {
		disk = DefaultDisk
	}
	network := opts.Network
	if network.Backend == nil {
		network.Backend = api.SharedNetwork{}
	}
	network.Forwards = nilIfEmpty(network.Forwards)
	display := opts.Display
	if display.Backend == nil {
		display.Backend = api.CocoaDisplay{}
	}

	cfg := &api.VMConfig{
		Meta: api.Meta{
			Version:   api.SchemaVersion,
			Generated: id.Generated.UTC().Format(time.RFC3339),
			Name:      opts.Name,
			Arch:      opts.Arch,
			UUID:      id.UUID,
		},
		Paths: api.Paths{Root: dir, Disk: disk, EFIVars: DefaultEFIVars},
		Hardware: api.Hardware{
			CPUModel: CPUModel(opts.Arch, opts.CPUModel),
			Sockets:  sockets,
			Cores:    cores,
			Threads:  threads,
			MemMB:    mem,
			Machine:  defs.Machine,
			Accel:    defs.Accel,
			MAC:      id.MAC,
		},
		Firmware: fw,
		Network:  network,
		Display:  display,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DisplayUpdate changes the display mode and optionally its settings. Nil
// fields keep the current value, or the mode default after a mode change.
type DisplayUpdate struct {
	Mode api.DisplayMode

	UseUnix *bool
	Sock    *string

	// VNC only.
	Host    *string
	Display *uint8

	// SPICE only.
	Addr             *string
	Port             *uint16
	DisableTicketing *bool
}

// ApplyDisplay applies u to cfg in memory. The result is not validated.
func ApplyDisplay(cfg *api.VMConfig, u DisplayUpdate) error {
	b, err := cfg.Display.ForMode(u.Mode)
	if err != nil {
		return &api.ValidationError{Field: "display.mode", Message: err.Error()}
	}

	vncOnly := u.Host != nil || u.Display != nil
	spiceOnly := u.Addr != nil || u.Port != nil || u.DisableTicketing != nil
	socketOpts := u.UseUnix != nil || u.Sock != nil

	switch v := b.(type) {
	case api.VNCDisplay:
		if spiceOnly {
			return &api.ValidationError{Field: "display", Message: "addr, port and ticketing only apply to spice"}
		}
		setIf(&v.UseUnix, u.UseUnix)
		setIf(&v.Sock, u.Sock)
		setIf(&v.Host, u.Host)
		setIf(&v.Display, u.Display)
		b = v
	case api.SpiceDisplay:
		if vncOnly {
			return &api.ValidationError{Field: "display", Message: "host and display number only apply to vnc"}
		}
		setIf(&v.UseUnix, u.UseUnix)
		setIf(&v.Sock, u.Sock)
		setIf(&v.Addr, u.Addr)
		setIf(&v.Port, u.Port)
		setIf(&v.DisableTicketing, u.DisableTicketing)
		b = v
	default:
		if vncOnly || spiceOnly || socketOpts {
			return &api.ValidationError{Field: "display", Message: fmt.Sprintf("mode %s takes no settings", u.Mode)}
		}
	}

	cfg.Display.Backend = b
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// NetworkUpdate changes the network mode and forwards.
type NetworkUpdate struct {
	Mode api.NetworkMode
	// BridgeIf is required for vmnet-bridged unless the VM is already bridged.
	BridgeIf string
	// Forwards are added, replacing entries with the same name.
	Forwards map[string]api.PortForward
	// ClearForwards drops existing forwards before adding new ones.
	ClearForwards bool
}

// ApplyNetwork applies u to cfg in memory. The result is not validated.
func ApplyNetwork(cfg *api.VMConfig, u NetworkUpdate) error {
	switch u.Mode {
	case api.NetworkShared:
		cfg.Network.Backend = api.SharedNetwork{}
	case api.NetworkUser:
		cfg.Network.Backend = api.UserNetwork{}
	case api.NetworkBridged:
		iface := u.BridgeIf
		if cur, ok := cfg.Network.Backend.(api.BridgedNetwork); ok && iface == "" {
			iface = cur.Interface
		}
		cfg.Network.Backend = api.BridgedNetwork{Interface: iface}
	default:
		return &api.ValidationError{Field: "network.mode", Message: fmt.Sprintf("unknown mode %q", u.Mode)}
	}

	if u.ClearForwards {
		cfg.Network.Forwards = nil
	}
	if len(u.Forwards) > 0 {
		if cfg.Network.Forwards == nil {
			cfg.Network.Forwards = make(map[string]api.PortForward, len(u.Forwards))
		}
		maps.Copy(cfg.Network.Forwards, u.Forwards)
	}
	cfg.Network.Forwards = nilIfEmpty(cfg.Network.Forwards)
	return nil
}

// nilIfEmpty keeps "no forwards" in one form; vm.json omits an empty map
// and loads it back as nil.
func nilIfEmpty(m map[string]api.PortForward) map[string]api.PortForward {
	if len(m) == 0 {
		return nil
	}
	return m
}

// ParseForward parses NAME=[PROTO:]HOST:GUEST, e.g. ssh=tcp:2222:22.
func ParseForward(s string) (string, api.PortForward, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", api.PortForward{}, fmt.Errorf("invalid forward %q: expected NAME=[PROTO:]HOST:GUEST", s)
	}

	parts := strings.Split(spec, ":")
	fwd := api.PortForward{Proto: "tcp"}
	switch len(parts) {
	case 2:
	case 3:
		fwd.Proto = parts[0]
		parts = parts[1:]
	default:
		return "", api.PortForward{}, fmt.Errorf("invalid forward %q: expected NAME=[PROTO:]HOST:GUEST", s)
	}

	host, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return "", api.PortForward{}, fmt.Errorf("invalid forward %q: host port: %w", s, err)
	}
	guest, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return "", api.PortForward{}, fmt.Errorf("invalid forward %q: guest port: %w", s, err)
	}
	fwd.Host = uint16(host)
	fwd.Guest = uint16(guest)
	return name, fwd, nil
}
