package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnderRoot(t *testing.T) {
	tests := []struct {
		name      string
		root      string
		candidate string
		want      string
	}{
		{name: "relative", root: "/r", candidate: "d.img", want: "/r/d.img"},
		{name: "nested relative", root: "/r", candidate: "disks/d.img", want: "/r/disks/d.img"},
		{name: "absolute", root: "/r", candidate: "/abs/d.img", want: "/abs/d.img"},
		{name: "empty", root: "/r", candidate: "", want: "/r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveUnderRoot(tt.root, tt.candidate)
			assert.Equal(t, tt.want, got)
			assert.True(t, filepath.IsAbs(got))
		})
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"vm1", "ubuntu-24.04", "A_b", "x"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "-vm", ".hidden", "a/b", "..", "has space", string(make([]byte, 70))} {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestVMLayout(t *testing.T) {
	dir := VMDir("/home/u/qvm", "vm1")
	assert.Equal(t, "/home/u/qvm/vm1.qvm", dir)
	assert.Equal(t, "/home/u/qvm/vm1.qvm/vm.json", ConfPath(dir))
	assert.Equal(t, "/home/u/qvm/vm1.qvm/vm.pid", PIDPath(dir))
	assert.Equal(t, "/home/u/qvm/vm1.qvm/.lock", LockPath(dir))
	assert.Equal(t, "/home/u/qvm/vm1.qvm/qemu.log", LogPath(dir))

	name, ok := NameFromDir(dir)
	assert.True(t, ok)
	assert.Equal(t, "vm1", name)

	_, ok = NameFromDir("/home/u/qvm/notes")
	assert.False(t, ok)
	_, ok = NameFromDir("/home/u/qvm/.qvm")
	assert.False(t, ok)
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := t.TempDir()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(cwd); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	tests := []struct {
		in   string
		want string
	}{
		{in: "~", want: home},
		{in: "~/vms", want: filepath.Join(home, "vms")},
		{in: "vms", want: filepath.Join(cwd, "vms")},
		{in: "./a/../vms", want: filepath.Join(cwd, "vms")},
		{in: "/srv/qvm", want: "/srv/qvm"},
		{in: "~other/vms", want: filepath.Join(cwd, "~other", "vms")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandHome(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
