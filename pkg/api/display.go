package api

import (
	"encoding/json"
	"fmt"
)

// DisplayMode selects how the guest console is presented.
type DisplayMode string

const (
	DisplayCocoa    DisplayMode = "cocoa"
	DisplayVNC      DisplayMode = "vnc"
	DisplaySpice    DisplayMode = "spice"
	DisplayHeadless DisplayMode = "headless"
)

// ParseDisplayMode validates a display mode name.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch m := DisplayMode(s); m {
	case DisplayCocoa, DisplayVNC, DisplaySpice, DisplayHeadless:
		return m, nil
	}
	return "", fmt.Errorf("unknown display mode %q (expected cocoa, vnc, spice or headless)", s)
}

// DisplayBackend is the settings of exactly one display mode. Only the
// types in this package implement it.
type DisplayBackend interface {
	Mode() DisplayMode
	isDisplayBackend()
}

// CocoaDisplay opens a native window on the host.
type CocoaDisplay struct{}

// HeadlessDisplay runs without any display.
type HeadlessDisplay struct{}

// VNCDisplay exports the console over VNC on TCP or a unix socket.
type VNCDisplay struct {
	UseUnix bool   `json:"use_unix"`
	Host    string `json:"host"`
	Display uint8  `json:"display"`
	Sock    string `json:"sock"`
}

// SpiceDisplay exports the console over SPICE on TCP or a unix socket.
type SpiceDisplay struct {
	UseUnix          bool   `json:"use_unix"`
	Addr             string `json:"addr"`
	Port             uint16 `json:"port"`
	DisableTicketing bool   `json:"disable_ticketing"`
	Sock             string `json:"sock"`
}

func (CocoaDisplay) Mode() DisplayMode    { return DisplayCocoa }
func (HeadlessDisplay) Mode() DisplayMode { return DisplayHeadless }
func (VNCDisplay) Mode() DisplayMode      { return DisplayVNC }
func (SpiceDisplay) Mode() DisplayMode    { return DisplaySpice }

func (CocoaDisplay) isDisplayBackend()    {}
func (HeadlessDisplay) isDisplayBackend() {}
func (VNCDisplay) isDisplayBackend()      {}
func (SpiceDisplay) isDisplayBackend()    {}

// DefaultVNC returns the VNC settings used when a VM first switches to VNC.
func DefaultVNC() VNCDisplay {
	return VNCDisplay{Host: "127.0.0.1", Display: 1, Sock: "vnc.sock"}
}

// DefaultSpice returns the SPICE settings used when a VM first switches to SPICE.
func DefaultSpice() SpiceDisplay {
	return SpiceDisplay{Addr: "127.0.0.1", Port: 5930, DisableTicketing: true, Sock: "spice.sock"}
}

// Display wraps the active display backend.
type Display struct {
	Backend DisplayBackend
}

// Mode returns the active mode, or "" if no backend is set.
func (d Display) Mode() DisplayMode {
	if d.Backend == nil {
		return ""
	}
	return d.Backend.Mode()
}

// ForMode returns the backend for mode, keeping the current settings when the
// mode is unchanged and falling back to defaults otherwise.
func (d Display) ForMode(mode DisplayMode) (DisplayBackend, error) {
	if d.Backend != nil && d.Backend.Mode() == mode {
		return d.Backend, nil
	}
	switch mode {
	case DisplayCocoa:
		return CocoaDisplay{}, nil
	case DisplayHeadless:
		return HeadlessDisplay{}, nil
	case DisplayVNC:
		return DefaultVNC(), nil
	case DisplaySpice:
		return DefaultSpice(), nil
	}
	return nil, fmt.Errorf("unknown display mode %q", mode)
}

type displayJSON struct {
	Mode  DisplayMode   `json:"mode"`
	VNC   *VNCDisplay   `json:"vnc,omitempty"`
	Spice *SpiceDisplay `json:"spice,omitempty"`
}

// MarshalJSON writes the mode and, for vnc and spice, its settings.
func (d Display) MarshalJSON() ([]byte, error) {
	out := displayJSON{Mode: d.Mode()}
	switch b := d.Backend.(type) {
	case nil:
		return nil, fmt.Errorf("display: no backend set")
	case VNCDisplay:
		out.VNC = &b
	case SpiceDisplay:
		out.Spice = &b
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a tagged display section. Settings for an inactive
// mode are ignored.
func (d *Display) UnmarshalJSON(data []byte) error {
	var in displayJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Mode {
	case DisplayCocoa:
		d.Backend = CocoaDisplay{}
	case DisplayHeadless:
		d.Backend = HeadlessDisplay{}
	case DisplayVNC:
		if in.VNC == nil {
			return fmt.Errorf("display.vnc is required when display.mode is %q", in.Mode)
		}
		d.Backend = *in.VNC
	case DisplaySpice:
		if in.Spice == nil {
			return fmt.Errorf("display.spice is required when display.mode is %q", in.Mode)
		}
		d.Backend = *in.Spice
	case "":
		return fmt.Errorf("display.mode is required")
	default:
		return fmt.Errorf("unknown display.mode %q", in.Mode)
	}
	return nil
}
