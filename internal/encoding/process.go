package encoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"mkvshrink/internal/procgroup"
)

// Process is one running encoder pass.
type Process interface {
	// Stderr streams the diagnostic output until the process exits.
	Stderr() io.Reader
	// Wait blocks until the process exits. It may be called more than once.
	Wait() error
	// Terminate stops the process, escalating after grace, and returns once
	// it has exited.
	Terminate(grace time.Duration) error
	Pid() int
}

// Executor spawns encoder processes.
type Executor interface {
	Start(ctx context.Context, binary string, args []string) (Process, error)
}

// ExecExecutor runs binaries with os/exec in their own process group.
type ExecExecutor struct {
	// WaitDelay bounds how long Wait keeps stderr open after exit when a
	// grandchild still holds it. Defaults to 5s.
	WaitDelay time.Duration
}

// Start launches binary. The process is not tied to ctx; callers stop it with
// Terminate so the grace period applies. The returned process must be waited
// on.
func (e ExecExecutor) Start(ctx context.Context, binary string, args []string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(binary, args...) //nolint:gosec
	procgroup.Set(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = io.Discard
	cmd.Stderr = pw
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return nil, err
	}

	p := &execProcess{cmd: cmd, stderr: pr, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		_ = pw.Close()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stderr *io.PipeReader
	done   chan struct{}
	err    error

	termOnce sync.Once
	termErr  error
}

func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *execProcess) Terminate(grace time.Duration) error {
	p.termOnce.Do(func() {
		p.termErr = procgroup.Terminate(p.cmd, p.done, grace)
	})
	return p.termErr
}

// describeExit renders an exit error as "status N" or the signal name.
func describeExit(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return fmt.Sprintf("status %d", code)
		}
		return exitErr.String()
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return fmt.Sprintf("status %d", coder.ExitCode())
	}
	return err.Error()
}
