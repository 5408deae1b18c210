package qemu

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultConfirmDelay is how long a fresh engine must survive before the
// spawn counts as successful.
const DefaultConfirmDelay = 500 * time.Millisecond

// SpawnOptions control how the engine process is attached.
type SpawnOptions struct {
	// Detach starts the engine in its own session with output going to
	// LogPath, so it outlives the caller.
	Detach  bool
	LogPath string
}

// Process is a spawned engine.
type Process interface {
	PID() int
	// Wait blocks until the engine exits.
	Wait() error
}

// Spawner starts engine processes.
type Spawner interface {
	Spawn(ctx context.Context, inv *Invocation, opts SpawnOptions) (Process, error)
}

// ExecSpawner runs the engine with os/exec.
type ExecSpawner struct {
	ConfirmDelay time.Duration
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
	Log          logrus.FieldLogger
}

type execProcess struct {
	pid  int
	done chan struct{}
	err  error
}

func (p *execProcess) PID() int { return p.pid }

func (p *execProcess) Wait() error {
	<-p.done
	return p.err
}

// Spawn starts inv and waits ConfirmDelay for an early exit, which is
// reported as an error.
func (s *ExecSpawner) Spawn(ctx context.Context, inv *Invocation, opts SpawnOptions) (Process, error) {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	cmd := exec.Command(inv.Binary, inv.Args...)
	var logFile *os.File
	if opts.Detach {
		f, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open engine log: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	} else {
		cmd.Stdin = orDefault[io.Reader](s.Stdin, os.Stdin)
		cmd.Stdout = orDefault[io.Writer](s.Stdout, os.Stdout)
		cmd.Stderr = orDefault[io.Writer](s.Stderr, os.Stderr)
	}

	log.Debugf("Starting engine: %s", inv)
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", inv.Binary, err)
	}

	p := &execProcess{pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		if logFile != nil {
			logFile.Close()
		}
		close(p.done)
	}()

	delay := s.ConfirmDelay
	if delay == 0 {
		delay = DefaultConfirmDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-p.done:
		hint := ""
		if opts.Detach {
			hint = fmt.Sprintf(" (see %s)", opts.LogPath)
		}
		status := "exit status 0"
		if p.err != nil {
			status = p.err.Error()
		}
		return nil, fmt.Errorf("engine exited during startup: %s%s", status, hint)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-p.done
		return nil, ctx.Err()
	case <-timer.C:
	}
	return p, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
