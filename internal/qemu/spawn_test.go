package qemu

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func shInvocation(t *testing.T, script string) *Invocation {
	t.Helper()
	sh, err := exec.LookPath("sh")
	require.NoError(t, err)
	return &Invocation{Binary: sh, Args: []string{"-c", script}}
}

func TestSpawnForeground(t *testing.T) {
	var out bytes.Buffer
	s := &ExecSpawner{ConfirmDelay: 50 * time.Millisecond, Stdout: &out, Stderr: &out}

	p, err := s.Spawn(context.Background(), shInvocation(t, "sleep 0.3; echo done"), SpawnOptions{})
	require.NoError(t, err)
	assert.Greater(t, p.PID(), 0)
	require.NoError(t, p.Wait())
	assert.Equal(t, "done\n", out.String())
}

func TestSpawnEarlyExitIsAnError(t *testing.T) {
	s := &ExecSpawner{ConfirmDelay: 500 * time.Millisecond, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	_, err := s.Spawn(context.Background(), shInvocation(t, "exit 3"), SpawnOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited during startup")
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestSpawnDetachedWritesLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "qemu.log")
	s := &ExecSpawner{ConfirmDelay: 50 * time.Millisecond}

	p, err := s.Spawn(context.Background(), shInvocation(t, "echo booting; sleep 30"), SpawnOptions{Detach: true, LogPath: logPath})
	require.NoError(t, err)
	defer func() {
		_ = unix.Kill(p.PID(), unix.SIGKILL)
		_ = p.Wait()
	}()

	sid, err := unix.Getsid(p.PID())
	require.NoError(t, err)
	assert.Equal(t, p.PID(), sid, "detached engine should lead its own session")

	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(logPath)
		return strings.Contains(string(data), "booting")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSpawnMissingBinary(t *testing.T) {
	s := &ExecSpawner{}
	_, err := s.Spawn(context.Background(), &Invocation{Binary: "/nonexistent/qemu"}, SpawnOptions{})
	assert.Error(t, err)
}
