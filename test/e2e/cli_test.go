//go:build e2e

package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var qvmBinary string

func init() {
	if bin := os.Getenv("QVM_BIN"); bin != "" {
		qvmBinary = bin
	} else {
		// Default to project root relative path
		qvmBinary = "../../build/qvm"
	}
}

// TestCLIVersion tests the version command.
func TestCLIVersion(t *testing.T) {
	out, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "qvm version")
	assert.Contains(t, out, "Go version")
	assert.Contains(t, out, "OS/Arch")
}

// TestCLIHelp tests the help command.
func TestCLIHelp(t *testing.T) {
	out, err := runCommand(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "qvm")
	assert.Contains(t, out, "QEMU")
	assert.Contains(t, out, "Commands:")
}

func TestCLICommandHelp(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"create", []string{"--arch", "--mem", "--disk-size", "--forward", "--display"}},
		{"start", []string{"--iso", "--daemon", "--console", "--dry-run"}},
		{"stop", []string{"--force", "--timeout"}},
		{"delete", []string{"--force", "--yes"}},
		{"set-display", []string{"--unix", "--port"}},
		{"set-network", []string{"--bridge-if", "--clear-forwards"}},
		{"inspect", []string{"--output"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			out, err := runCommand(t, "", tt.command, "--help")
			require.NoError(t, err)
			for _, f := range tt.flags {
				assert.Contains(t, out, f)
			}
		})
	}
}

// TestCLIStatusUnknownVM tests that a missing VM is an error.
func TestCLIStatusUnknownVM(t *testing.T) {
	home := t.TempDir()
	out, err := runCommand(t, home, "status", "nope")
	require.Error(t, err)
	assert.Contains(t, out, "not found")
}

// TestCLIConfigWorkflow runs create, configure, dry-run and delete without
// booting anything.
func TestCLIConfigWorkflow(t *testing.T) {
	home := t.TempDir()

	out, err := runCommand(t, home, "create", "e2e", "--display", "headless", "--network", "user")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created VM e2e")

	out, err = runCommand(t, home, "set-network", "e2e", "user", "--forward", "ssh=2222:22")
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(filepath.Join(home, "e2e.qvm", "disk.qcow2"), nil, 0o644))

	out, err = runCommand(t, home, "start", "e2e", "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "-display none")
	assert.Contains(t, out, "hostfwd=tcp::2222-:22")

	out, err = runCommand(t, home, "delete", "e2e", "--yes")
	require.NoError(t, err, out)
	assert.NoDirExists(t, filepath.Join(home, "e2e.qvm"))
}

// TestFullWorkflow tests the complete workflow: create, start, status, stop.
func TestFullWorkflow(t *testing.T) {
	if os.Getenv("QVM_E2E_FULL") != "1" {
		t.Skip("Skipping full workflow test (set QVM_E2E_FULL=1 to run)")
	}
	home := t.TempDir()

	out, err := runCommand(t, home, "create", "full", "--display", "headless", "--network", "user", "--disk-size", "1G", "--mem", "512")
	require.NoError(t, err, out)

	out, err = runCommand(t, home, "start", "full", "--daemon")
	require.NoError(t, err, "Failed to start VM: %s", out)
	assert.Contains(t, out, "Started VM full")

	time.Sleep(2 * time.Second)

	out, err = runCommand(t, home, "status", "full")
	require.NoError(t, err)
	assert.Contains(t, out, "running")

	out, err = runCommand(t, home, "stop", "full", "--force", "--timeout", "5s")
	require.NoError(t, err, out)

	out, err = runCommand(t, home, "status", "full")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")

	_, err = runCommand(t, home, "delete", "full", "--yes")
	require.NoError(t, err)
}

func runCommand(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	if home != "" {
		args = append([]string{"--home", home}, args...)
	}
	cmd := exec.Command(qvmBinary, args...)
	cmd.Env = append(os.Environ(), "HOME="+t.TempDir())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		output += stderr.String()
	}

	if err != nil {
		return output, err
	}
	return strings.TrimSpace(output), nil
}
