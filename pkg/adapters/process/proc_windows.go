//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

var errGracefulUnsupported = errors.New("graceful termination is not supported on windows")

func configureCommandProcess(cmd *exec.Cmd) {}

// Windows has no SIGTERM for arbitrary processes; callers fall back to Kill.
func terminateCommandProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return os.ErrProcessDone
	}
	return errGracefulUnsupported
}

func killCommandProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return os.ErrProcessDone
	}
	return cmd.Process.Kill()
}
