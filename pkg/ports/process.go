package ports

import (
	"context"
	"io"

	"github.com/aretw0/crucible/pkg/domain"
)

// LaunchSpec describes one invocation of the verification tool.
// Arguments are passed directly to the process, never through a shell.
type LaunchSpec struct {
	Dir     string
	Command string
	Args    []string
	// Env is appended to the inherited environment as KEY=VALUE.
	Env []string
}

// Process is a started external process.
type Process interface {
	domain.ProcessHandle

	// Stdout and Stderr are owned by the caller, which must read both to EOF.
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait blocks until the process has been reaped and returns its exit code.
	// A process ended by a signal reports -1.
	Wait() (int, error)
}

// Launcher spawns processes.
type Launcher interface {
	// Launch starts the process. Errors match domain.ErrToolNotFound when the
	// command cannot be resolved and domain.ErrSpawnFailure otherwise.
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Publisher accepts events for ordered delivery. Publish must not block.
type Publisher interface {
	Publish(ev domain.Event) bool
}
