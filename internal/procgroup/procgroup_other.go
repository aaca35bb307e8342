//go:build !unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
)

// Set is a no-op where process groups are unavailable.
func Set(cmd *exec.Cmd) {}

// There is no portable graceful stop outside unix; the root process is
// killed and any children are left to the OS.
func interrupt(cmd *exec.Cmd) error {
	return kill(cmd)
}

func kill(cmd *exec.Cmd) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
