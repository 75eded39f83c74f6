package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
)

// Launcher implements ports.Launcher with os/exec.
// Processes run in their own process group so termination reaches every descendant.
type Launcher struct {
	logger *slog.Logger
}

// LauncherOption configures the launcher.
type LauncherOption func(*Launcher)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) LauncherOption {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// NewLauncher creates a new process Launcher.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ ports.Launcher = (*Launcher)(nil)

// Launch resolves the command through PATH and starts it in spec.Dir with
// both output streams piped back to the caller.
func (l *Launcher) Launch(ctx context.Context, spec ports.LaunchSpec) (ports.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailure, err)
	}

	name := spec.Command
	// Relative paths with a separator are relative to the working directory of the tool.
	if !filepath.IsAbs(name) && strings.ContainsRune(name, filepath.Separator) && spec.Dir != "" {
		name = filepath.Join(spec.Dir, name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrToolNotFound, spec.Command, err)
	}

	// Not CommandContext: termination is driven by Terminate/Kill with a grace period.
	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(cmd.Environ(), spec.Env...)
	cmd.Stdin = nil
	configureCommandProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", domain.ErrSpawnFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", domain.ErrSpawnFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSpawnFailure, spec.Command, err)
	}

	p := &Process{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		exited: make(chan struct{}),
	}
	go p.reap()

	l.logger.Debug("process started", "pid", cmd.Process.Pid, "path", path, "dir", spec.Dir)
	return p, nil
}

// Process is a running tool started by Launcher.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	exited   chan struct{}
	exitCode int
	waitErr  error

	closeOnce sync.Once
}

var _ ports.Process = (*Process)(nil)

// reap waits for the process without touching the pipes, so exit is observed
// independently of whether the streams have been drained.
func (p *Process) reap() {
	state, err := p.cmd.Process.Wait()
	if err != nil {
		p.exitCode, p.waitErr = -1, fmt.Errorf("wait: %w", err)
	} else {
		p.exitCode = state.ExitCode()
	}
	close(p.exited)
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Stdout returns the standard output stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Stderr returns the standard error stream.
func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Wait blocks until the process is reaped, then releases the pipes.
func (p *Process) Wait() (int, error) {
	<-p.exited
	p.closeOnce.Do(func() {
		_ = p.stdout.Close()
		_ = p.stderr.Close()
	})
	return p.exitCode, p.waitErr
}

// Terminate sends a graceful termination request to the process group.
func (p *Process) Terminate() error {
	return terminateCommandProcess(p.cmd)
}

// Kill forcefully ends the process group. Surviving descendants are killed
// even after the leader has been reaped.
func (p *Process) Kill() error {
	err := killCommandProcess(p.cmd)
	if err != nil && isExited(p.exited) {
		return os.ErrProcessDone
	}
	return err
}

func isExited(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
