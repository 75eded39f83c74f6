package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/classify"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
)

// DefaultGracePeriod is how long a cancelled process may take to exit before it is killed.
const DefaultGracePeriod = 5 * time.Second

// RunSpec describes how to execute one admitted run.
type RunSpec struct {
	// Tool is the display name used in banners and diagnostics.
	Tool        string
	Launch      ports.LaunchSpec
	InstallHint string
	Markers     classify.Markers

	// Release runs once the process is gone, before the terminal transition.
	Release func()
}

// Orchestrator owns the lifecycle of the external process: launch, concurrent
// stream draining, exit detection and termination with a grace period.
type Orchestrator struct {
	machine  *Machine
	launcher ports.Launcher
	grace    time.Duration
	logger   *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.grace = d
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator driving machine.
func NewOrchestrator(machine *Machine, launcher ports.Launcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		machine:  machine,
		launcher: launcher,
		grace:    DefaultGracePeriod,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GracePeriod returns the configured grace period.
func (o *Orchestrator) GracePeriod() time.Duration {
	return o.grace
}

// Start launches the process for an admitted run and returns without waiting
// for it. A launch failure moves the run to Errored and is returned.
func (o *Orchestrator) Start(ctx context.Context, runID uint64, spec RunSpec) error {
	o.machine.Log(runID, domain.NewLogEvent(runID, domain.OriginSystem, domain.SeverityInfo,
		fmt.Sprintf("Starting %s tests...", spec.Tool)))

	proc, err := o.launcher.Launch(ctx, spec.Launch)
	if err != nil {
		if spec.Release != nil {
			spec.Release()
		}
		ev := domain.NewLogEvent(runID, domain.OriginSystem, domain.SeverityError, launchFailureText(spec, err))
		o.logger.Warn("launch failed", "run_id", runID, "command", spec.Launch.Command, "err", err)
		if abortErr := o.machine.Abort(runID, err, &ev); abortErr != nil {
			return errors.Join(err, abortErr)
		}
		return err
	}

	stop, err := o.machine.Launched(runID, proc)
	if err != nil {
		// The run is no longer tracked; nothing may observe this process.
		_ = proc.Kill()
		go func() { _, _ = proc.Wait() }()
		return err
	}

	o.logger.Info("run started",
		"run_id", runID,
		"command", spec.Launch.Command,
		"dir", spec.Launch.Dir,
		"pid", proc.Pid(),
	)

	go o.work(runID, proc, classify.New(spec.Markers), spec.Release)
	if stop {
		o.logger.Info("harness closing, stopping run", "run_id", runID)
		o.stop(runID, proc)
	}
	return nil
}

// Cancel requests termination of the running process. It never blocks and is
// a no-op unless the state is Running.
func (o *Orchestrator) Cancel() {
	runID, handle, ok := o.machine.RequestCancel()
	if !ok {
		return
	}
	o.logger.Info("cancel requested", "run_id", runID, "pid", handle.Pid())
	o.stop(runID, handle)
}

// stop signals a run already in Stopping and arms the grace period.
func (o *Orchestrator) stop(runID uint64, handle domain.ProcessHandle) {
	o.machine.Log(runID, domain.NewLogEvent(runID, domain.OriginSystem, domain.SeverityWarning, "Stopping tests..."))

	if err := handle.Terminate(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return
		}
		o.logger.Warn("graceful termination failed, killing", "run_id", runID, "err", err)
		if err := handle.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			o.logger.Error("kill failed", "run_id", runID, "err", err)
		}
		return
	}

	go o.enforceGrace(runID, handle, o.machine.Finished())
}

// Kill marks the run as cancelled and kills the process group without
// waiting out the grace period.
func (o *Orchestrator) Kill() {
	o.machine.RequestCancel()
	runID, handle, ok := o.machine.Active()
	if !ok {
		return
	}
	o.logger.Warn("forced kill requested", "run_id", runID, "pid", handle.Pid())
	if err := handle.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		o.logger.Error("kill failed", "run_id", runID, "err", err)
	}
}

// enforceGrace kills the process group if the run has not finished within the grace period.
func (o *Orchestrator) enforceGrace(runID uint64, handle domain.ProcessHandle, finished <-chan struct{}) {
	timer := time.NewTimer(o.grace)
	defer timer.Stop()

	select {
	case <-finished:
		return
	case <-timer.C:
	}

	o.logger.Warn("grace period expired, killing process", "run_id", runID, "grace", o.grace)
	o.machine.Log(runID, domain.NewLogEvent(runID, domain.OriginSystem, domain.SeverityWarning,
		fmt.Sprintf("Process did not exit within %s, forcing termination", o.grace)))
	if err := handle.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		o.logger.Error("kill failed", "run_id", runID, "err", err)
	}
}

// work drains both streams, reaps the process and completes the run.
// Exit is only reported once both readers hit end of stream and the exit code is known.
func (o *Orchestrator) work(runID uint64, proc ports.Process, classifier *classify.Classifier, release func()) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		readErr error
	)
	drain := func(r io.Reader, origin domain.Origin) {
		defer wg.Done()
		if err := o.drain(runID, r, origin, classifier); err != nil {
			mu.Lock()
			readErr = errors.Join(readErr, err)
			mu.Unlock()
			o.machine.Log(runID, domain.NewLogEvent(runID, domain.OriginSystem, domain.SeverityError, err.Error()))
			// The other reader only returns once the pipes close.
			_ = proc.Kill()
		}
	}

	wg.Add(2)
	go drain(proc.Stdout(), domain.OriginStdout)
	go drain(proc.Stderr(), domain.OriginStderr)
	wg.Wait()

	code, waitErr := proc.Wait()
	cause := readErr
	if waitErr != nil {
		cause = errors.Join(cause, fmt.Errorf("wait for process: %w", waitErr))
	}

	if release != nil {
		release()
	}

	run, err := o.machine.Complete(runID, code, cause, summarize)
	if err != nil {
		o.logger.Error("failed to complete run", "run_id", runID, "err", err)
		return
	}
	o.logger.Debug("worker done", "run_id", runID, "state", run.State)
}

// drain reads r line by line until end of stream. A final line with no
// terminator is still emitted.
func (o *Orchestrator) drain(runID uint64, r io.Reader, origin domain.Origin, classifier *classify.Classifier) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			o.emit(runID, origin, line, classifier)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %s: %v", domain.ErrStreamIO, origin, err)
		}
	}
}

func (o *Orchestrator) emit(runID uint64, origin domain.Origin, raw string, classifier *classify.Classifier) {
	text := classify.SanitizeLine(strings.TrimRight(raw, "\r\n"))
	if strings.TrimSpace(text) == "" {
		return
	}
	o.machine.Log(runID, domain.NewLogEvent(runID, origin, classifier.Classify(origin, text), text))
}

func summarize(state domain.RunState, exitCode int, cause error) *domain.LogEvent {
	var ev domain.LogEvent
	switch state {
	case domain.StateSucceeded:
		ev = domain.NewLogEvent(0, domain.OriginSystem, domain.SeveritySuccess, "All tests passed successfully!")
	case domain.StateFailed:
		text := fmt.Sprintf("Tests failed (exit code %d)", exitCode)
		if exitCode < 0 {
			text = "Tests terminated by signal"
		}
		ev = domain.NewLogEvent(0, domain.OriginSystem, domain.SeverityError, text)
	case domain.StateStopped:
		ev = domain.NewLogEvent(0, domain.OriginSystem, domain.SeverityWarning, "Tests stopped by user")
	case domain.StateErrored:
		ev = domain.NewLogEvent(0, domain.OriginSystem, domain.SeverityError, fmt.Sprintf("Test run aborted: %v", cause))
	default:
		return nil
	}
	return &ev
}

func launchFailureText(spec RunSpec, err error) string {
	if errors.Is(err, domain.ErrToolNotFound) {
		msg := fmt.Sprintf("%s not found: %v", spec.Tool, err)
		if spec.InstallHint != "" {
			msg += "\n\n" + spec.InstallHint
		}
		return msg
	}
	return fmt.Sprintf("Error running %s: %v", spec.Tool, err)
}
