// Package procgroup runs encoder subprocesses in their own process group so a
// cancellation reaches every child ffmpeg spawns.
package procgroup

import (
	"os/exec"
	"time"
)

// Terminate asks the process group to stop, then forces it after grace.
// done must be closed once the process has been reaped; Terminate does not
// wait on cmd itself. It is safe to call on commands that never started.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if grace <= 0 {
		grace = time.Second
	}

	termErr := interrupt(cmd)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	if err := kill(cmd); err != nil {
		return err
	}
	<-done
	return termErr
}
