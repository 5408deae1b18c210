package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig() *VMConfig {
	return &VMConfig{
		Meta: Meta{
			Version:   SchemaVersion,
			Generated: "2026-01-02T03:04:05Z",
			Name:      "vm1",
			Arch:      ArchAArch64,
			UUID:      "6f1c2b0e-8f0a-4b8e-9a53-1f1d8a3c9b11",
		},
		Paths: Paths{Root: "/home/u/qvm/vm1.qvm", Disk: "disk.qcow2", EFIVars: "efi_vars.fd"},
		Hardware: Hardware{
			CPUModel: "host",
			Sockets:  1,
			Cores:    4,
			Threads:  1,
			MemMB:    4096,
			Machine:  "virt,gic-version=3",
			Accel:    "hvf",
			MAC:      "52:54:00:12:34:56",
		},
		Firmware: Firmware{
			Code:         "/share/qemu/edk2-aarch64-code.fd",
			VarsTemplate: "/share/qemu/edk2-arm-vars.fd",
		},
		Network: Network{Backend: SharedNetwork{}},
		Display: Display{Backend: CocoaDisplay{}},
	}
}

func TestParseArch(t *testing.T) {
	tests := []struct {
		in      string
		want    Arch
		wantErr bool
	}{
		{in: "aarch64", want: ArchAArch64},
		{in: "arm64", want: ArchAArch64},
		{in: "x86_64", want: ArchX86_64},
		{in: "AMD64", want: ArchX86_64},
		{in: "riscv64", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseArch(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsupported arch")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVMConfigJSONLayout(t *testing.T) {
	data, err := json.Marshal(sampleConfig())
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Len(t, m, 6)

	meta := m["meta"].(map[string]interface{})
	assert.Equal(t, float64(1), meta["version"])
	assert.Equal(t, "aarch64", meta["arch"])

	paths := m["paths"].(map[string]interface{})
	assert.Equal(t, "efi_vars.fd", paths["efi_vars"])

	hw := m["hardware"].(map[string]interface{})
	assert.Equal(t, "host", hw["cpu_model"])
	assert.Equal(t, float64(4096), hw["mem_mb"])

	fw := m["firmware"].(map[string]interface{})
	assert.Equal(t, "/share/qemu/edk2-arm-vars.fd", fw["vars_template"])

	assert.Equal(t, map[string]interface{}{"mode": "vmnet-shared"}, m["network"])
	assert.Equal(t, map[string]interface{}{"mode": "cocoa"}, m["display"])
}

func TestVMConfigRoundTrip(t *testing.T) {
	cfgs := map[string]*VMConfig{
		"cocoa shared": sampleConfig(),
	}

	vnc := sampleConfig()
	vnc.Display = Display{Backend: VNCDisplay{UseUnix: true, Host: "127.0.0.1", Display: 3, Sock: "vnc.sock"}}
	vnc.Network = Network{Backend: BridgedNetwork{Interface: "en1"}}
	cfgs["vnc bridged"] = vnc

	spice := sampleConfig()
	spice.Display = Display{Backend: DefaultSpice()}
	spice.Network = Network{
		Backend:  UserNetwork{},
		Forwards: map[string]PortForward{"ssh": {Proto: "tcp", Host: 2222, Guest: 22}},
	}
	cfgs["spice user"] = spice

	for name, cfg := range cfgs {
		t.Run(name, func(t *testing.T) {
			data, err := json.MarshalIndent(cfg, "", "  ")
			require.NoError(t, err)

			var got VMConfig
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, *cfg, got)
		})
	}
}

func TestVMConfigPreservesUnknownKeys(t *testing.T) {
	data, err := json.Marshal(sampleConfig())
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	m["annotations"] = json.RawMessage(`{"owner": "ops", "tier": 2}`)
	data, err = json.Marshal(m)
	require.NoError(t, err)

	var cfg VMConfig
	require.NoError(t, json.Unmarshal(data, &cfg))
	require.Contains(t, cfg.Extra, "annotations")

	out, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	var back map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &back))
	assert.JSONEq(t, `{"owner":"ops","tier":2}`, string(back["annotations"]))
	assert.Contains(t, back, "meta")
}

func TestDisplayJSONOnlyWritesActiveMode(t *testing.T) {
	data, err := json.Marshal(Display{Backend: DefaultVNC()})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "vnc", m["mode"])
	assert.Contains(t, m, "vnc")
	assert.NotContains(t, m, "spice")
}

func TestDisplayUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{name: "missing mode", input: `{}`, errMsg: "display.mode is required"},
		{name: "unknown mode", input: `{"mode":"sdl"}`, errMsg: `unknown display.mode "sdl"`},
		{name: "vnc without settings", input: `{"mode":"vnc"}`, errMsg: "display.vnc is required"},
		{name: "spice without settings", input: `{"mode":"spice","vnc":{}}`, errMsg: "display.spice is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Display
			err := json.Unmarshal([]byte(tt.input), &d)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDisplayIgnoresInactiveSettings(t *testing.T) {
	var d Display
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"headless","vnc":{"host":"0.0.0.0"}}`), &d))
	assert.Equal(t, HeadlessDisplay{}, d.Backend)
}

func TestDisplayForMode(t *testing.T) {
	current := Display{Backend: VNCDisplay{Host: "10.0.0.1", Display: 7, Sock: "x.sock"}}

	b, err := current.ForMode(DisplayVNC)
	require.NoError(t, err)
	assert.Equal(t, current.Backend, b)

	b, err = current.ForMode(DisplaySpice)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpice(), b)

	_, err = current.ForMode("sdl")
	assert.Error(t, err)
}

func TestNetworkJSON(t *testing.T) {
	data, err := json.Marshal(Network{Backend: BridgedNetwork{Interface: "en0"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"vmnet-bridged","bridge_if":"en0"}`, string(data))

	var n Network
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"vmnet-shared","bridge_if":"en0"}`), &n))
	assert.Equal(t, SharedNetwork{}, n.Backend)
	assert.Nil(t, n.Forwards)

	err = json.Unmarshal([]byte(`{"mode":"tap"}`), &n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown network.mode "tap"`)
}

func TestParseModes(t *testing.T) {
	m, err := ParseDisplayMode("headless")
	require.NoError(t, err)
	assert.Equal(t, DisplayHeadless, m)
	_, err = ParseDisplayMode("gtk")
	assert.Error(t, err)

	n, err := ParseNetworkMode("user")
	require.NoError(t, err)
	assert.Equal(t, NetworkUser, n)
	_, err = ParseNetworkMode("slirp")
	assert.Error(t, err)
}

func TestHardwareVCPUs(t *testing.T) {
	h := Hardware{Sockets: 2, Cores: 3, Threads: 2}
	assert.Equal(t, uint32(12), h.VCPUs())
}
