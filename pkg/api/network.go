package api

import (
	"encoding/json"
	"fmt"
)

// NetworkMode selects how the guest NIC reaches the outside world.
type NetworkMode string

const (
	NetworkShared  NetworkMode = "vmnet-shared"
	NetworkBridged NetworkMode = "vmnet-bridged"
	NetworkUser    NetworkMode = "user"
)

// ParseNetworkMode validates a network mode name.
func ParseNetworkMode(s string) (NetworkMode, error) {
	switch m := NetworkMode(s); m {
	case NetworkShared, NetworkBridged, NetworkUser:
		return m, nil
	}
	return "", fmt.Errorf("unknown network mode %q (expected vmnet-shared, vmnet-bridged or user)", s)
}

// NetworkBackend is the settings of exactly one network mode. Only the
// types in this package implement it.
type NetworkBackend interface {
	Mode() NetworkMode
	isNetworkBackend()
}

// SharedNetwork is host NAT through vmnet.
type SharedNetwork struct{}

// BridgedNetwork bridges the guest onto a host interface.
type BridgedNetwork struct {
	Interface string
}

// UserNetwork is the engine's user-mode stack, reachable through Forwards.
type UserNetwork struct{}

func (SharedNetwork) Mode() NetworkMode  { return NetworkShared }
func (BridgedNetwork) Mode() NetworkMode { return NetworkBridged }
func (UserNetwork) Mode() NetworkMode    { return NetworkUser }

func (SharedNetwork) isNetworkBackend()  {}
func (BridgedNetwork) isNetworkBackend() {}
func (UserNetwork) isNetworkBackend()    {}

// DefaultBridgeInterface is the host interface used when bridging without
// an explicit choice on the command line.
const DefaultBridgeInterface = "en0"

// PortForward maps a host port to a guest port in user mode.
type PortForward struct {
	Proto string `json:"proto"`
	Host  uint16 `json:"host"`
	Guest uint16 `json:"guest"`
}

// Network is the NIC configuration.
type Network struct {
	Backend NetworkBackend
	// Forwards are named port forwards. They only take effect in user mode
	// but are kept across mode changes.
	Forwards map[string]PortForward
}

// Mode returns the active mode, or "" if no backend is set.
func (n Network) Mode() NetworkMode {
	if n.Backend == nil {
		return ""
	}
	return n.Backend.Mode()
}

type networkJSON struct {
	Mode     NetworkMode            `json:"mode"`
	BridgeIf string                 `json:"bridge_if,omitempty"`
	Forwards map[string]PortForward `json:"forwards,omitempty"`
}

// MarshalJSON writes the mode, the bridge interface when bridged, and any forwards.
func (n Network) MarshalJSON() ([]byte, error) {
	out := networkJSON{Mode: n.Mode(), Forwards: n.Forwards}
	switch b := n.Backend.(type) {
	case nil:
		return nil, fmt.Errorf("network: no backend set")
	case BridgedNetwork:
		out.BridgeIf = b.Interface
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a tagged network section. bridge_if is ignored unless
// the mode is vmnet-bridged.
func (n *Network) UnmarshalJSON(data []byte) error {
	var in networkJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Mode {
	case NetworkShared:
		n.Backend = SharedNetwork{}
	case NetworkBridged:
		n.Backend = BridgedNetwork{Interface: in.BridgeIf}
	case NetworkUser:
		n.Backend = UserNetwork{}
	case "":
		return fmt.Errorf("network.mode is required")
	default:
		return fmt.Errorf("unknown network.mode %q", in.Mode)
	}
	n.Forwards = nil
	if len(in.Forwards) > 0 {
		n.Forwards = in.Forwards
	}
	return nil
}
