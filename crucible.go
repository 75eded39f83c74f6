package crucible

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/internal/runtime"
	"github.com/aretw0/crucible/pkg/adapters/process"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
	"github.com/aretw0/crucible/pkg/sink"
	"github.com/aretw0/crucible/pkg/workspace"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed Harness.
var ErrClosed = domain.ErrClosed

const (
	// DefaultLockTTL is the lease of the workspace run lock; it is refreshed while held.
	DefaultLockTTL = 30 * time.Second
	// DefaultLockWait bounds how long StartRun waits for a busy workspace lock.
	DefaultLockWait = 2 * time.Second
)

// Harness is the high-level entry point for the Crucible library.
// It stages artifacts into a workspace, runs the verification tool against
// them and delivers classified output and state changes on a single ordered stream.
type Harness struct {
	ID string

	tool     process.ToolConfig
	launcher ports.Launcher
	locker   ports.RunLocker
	lockTTL  time.Duration
	lockWait time.Duration
	grace    time.Duration
	wsOpts   []workspace.Option
	sinkOpts []sink.Option
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	sink    *sink.Sink
	machine *runtime.Machine
	orch    *runtime.Orchestrator

	// closing is cancelled by Close to interrupt a run waiting for the lock.
	closing  context.Context
	closeNow context.CancelFunc
	mu       sync.Mutex
	ws       *workspace.Workspace
	closed   bool
}

// Option defines a functional option for configuring the Harness.
type Option func(*Harness)

// WithTool selects the verification tool profile (default: truffle).
func WithTool(tool process.ToolConfig) Option {
	return func(h *Harness) {
		h.tool = tool
	}
}

// WithLauncher replaces the os/exec process launcher.
func WithLauncher(l ports.Launcher) Option {
	return func(h *Harness) {
		h.launcher = l
	}
}

// WithLocker enables cross-instance exclusion of runs on the same workspace.
func WithLocker(l ports.RunLocker) Option {
	return func(h *Harness) {
		h.locker = l
	}
}

// WithLockTTL sets the lease of the workspace run lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(h *Harness) {
		h.lockTTL = ttl
	}
}

// WithLockWait bounds how long a run waits for a busy workspace.
func WithLockWait(d time.Duration) Option {
	return func(h *Harness) {
		h.lockWait = d
	}
}

// WithGracePeriod sets how long a cancelled process may take to exit before it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(h *Harness) {
		h.grace = d
	}
}

// WithWorkspaceOptions configures workspaces created by Initialize.
func WithWorkspaceOptions(opts ...workspace.Option) Option {
	return func(h *Harness) {
		h.wsOpts = append(h.wsOpts, opts...)
	}
}

// WithSinkOptions configures the event stream.
func WithSinkOptions(opts ...sink.Option) Option {
	return func(h *Harness) {
		h.sinkOpts = append(h.sinkOpts, opts...)
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(h *Harness) {
		h.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the harness.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// New creates a Harness in the Idle state. Call Initialize before StartRun.
func New(opts ...Option) *Harness {
	h := &Harness{
		ID:       uuid.NewString(),
		tool:     process.Truffle(),
		lockTTL:  DefaultLockTTL,
		lockWait: DefaultLockWait,
		grace:    runtime.DefaultGracePeriod,
		logger:   logging.NewNop(),
	}
	h.closing, h.closeNow = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("harness_id", h.ID)
	if h.launcher == nil {
		h.launcher = process.NewLauncher(process.WithLogger(h.logger))
	}

	h.sink = sink.New(append([]sink.Option{sink.WithLogger(h.logger)}, h.sinkOpts...)...)
	h.machine = runtime.NewMachine(h.sink,
		runtime.WithMachineLogger(h.logger),
		runtime.WithLifecycleHooks(h.hooks),
	)
	h.orch = runtime.NewOrchestrator(h.machine, h.launcher,
		runtime.WithGracePeriod(h.grace),
		runtime.WithLogger(h.logger),
	)
	return h
}

// Events returns the ordered stream of log lines and state changes.
// There must be exactly one reader. The channel is closed by Close.
func (h *Harness) Events() <-chan domain.Event {
	return h.sink.Events()
}

// State returns the current run state.
func (h *Harness) State() domain.RunState {
	return h.machine.State()
}

// Current returns a snapshot of the current or last run.
func (h *Harness) Current() (domain.TestRun, bool) {
	return h.machine.Current()
}

// Tool returns the configured verification tool profile.
func (h *Harness) Tool() process.ToolConfig {
	return h.tool
}

// Root returns the absolute workspace root, or "" before Initialize.
func (h *Harness) Root() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ws == nil {
		return ""
	}
	return h.ws.Root()
}

// Initialize scaffolds the project at root and moves the harness to Ready.
// It is rejected with domain.ErrAlreadyRunning while a run is active.
func (h *Harness) Initialize(root string, mode workspace.Mode) error {
	if h.isClosed() {
		return ErrClosed
	}
	if err := h.machine.BeginInitialize(); err != nil {
		return err
	}

	ws, created, err := h.scaffold(root, mode)
	if err == nil {
		h.mu.Lock()
		h.ws = ws
		h.mu.Unlock()
	}
	if err := h.machine.EndInitialize(err); err != nil {
		return err
	}

	h.logger.Info("workspace initialized", "root", ws.Root(), "mode", mode, "entries", len(created))
	return nil
}

func (h *Harness) scaffold(root string, mode workspace.Mode) (*workspace.Workspace, []string, error) {
	ws, err := workspace.New(root, h.wsOpts...)
	if err != nil {
		h.system(domain.SeverityError, fmt.Sprintf("Error initializing project: %v", err))
		return nil, nil, err
	}
	created, err := ws.Init(mode)
	for _, entry := range created {
		kind := "file"
		if len(entry) > 0 && entry[len(entry)-1] == filepath.Separator {
			kind = "folder"
		}
		h.system(domain.SeverityInfo, fmt.Sprintf("Created %s: %s", kind, entry))
	}
	if err != nil {
		h.system(domain.SeverityError, fmt.Sprintf("Error initializing project: %v", err))
		return nil, created, err
	}
	h.system(domain.SeveritySuccess, fmt.Sprintf("Project initialized at %s", ws.Root()))
	return ws, created, nil
}

// StartRun stages artifacts and launches the verification tool against the
// workspace. It returns as soon as the process is running.
//
// Any state other than Ready is rejected with domain.ErrAlreadyRunning and no
// side effect. Faults after admission (staging, lock, tool not found, spawn)
// end the run as Errored; the error is returned alongside the run.
func (h *Harness) StartRun(ctx context.Context, artifacts ...domain.StagedArtifact) (domain.TestRun, error) {
	if h.isClosed() {
		return domain.TestRun{}, ErrClosed
	}
	runID, err := h.machine.Admit()
	if err != nil {
		h.logger.Debug("run rejected", "state", h.machine.State(), "err", err)
		return domain.TestRun{}, err
	}

	h.mu.Lock()
	ws := h.ws
	h.mu.Unlock()

	if err := h.stage(runID, ws, artifacts); err != nil {
		return h.abort(runID, fmt.Errorf("%w: %w", domain.ErrStagingFailed, err))
	}

	release, err := h.acquire(ctx, ws.Root())
	if err != nil {
		if h.isClosed() {
			err = ErrClosed
		}
		return h.abort(runID, err)
	}
	if h.isClosed() {
		if release != nil {
			release()
		}
		return h.abort(runID, ErrClosed)
	}

	spec := runtime.RunSpec{
		Tool: h.tool.Name,
		Launch: ports.LaunchSpec{
			Dir:     ws.Root(),
			Command: h.tool.Command,
			Args:    h.tool.Args,
			Env:     h.tool.Env(),
		},
		InstallHint: h.tool.InstallHint,
		Markers:     h.tool.EffectiveMarkers(),
		Release:     release,
	}
	err = h.orch.Start(ctx, runID, spec)
	run, _ := h.machine.Current()
	return run, err
}

func (h *Harness) stage(runID uint64, ws *workspace.Workspace, artifacts []domain.StagedArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	if err := ws.Validate(artifacts); err != nil {
		return err
	}
	for _, a := range artifacts {
		path, err := ws.Write(a)
		if err != nil {
			return err
		}
		h.machine.Log(runID, domain.NewLogEvent(runID, domain.OriginSystem, domain.SeverityInfo, "Saved: "+path))
	}
	h.machine.Log(runID, domain.NewLogEvent(runID, domain.OriginSystem, domain.SeveritySuccess, "Files saved successfully"))
	return nil
}

// acquire takes the workspace run lock, if a locker is configured.
// The wait ends early when the harness is closed.
func (h *Harness) acquire(ctx context.Context, root string) (func(), error) {
	if h.locker == nil {
		return nil, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, h.lockWait)
	defer cancel()
	stop := context.AfterFunc(h.closing, cancel)
	defer stop()

	unlock, err := h.locker.Lock(lockCtx, root, h.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrWorkspaceLocked, root, err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlock(ctx); err != nil {
			h.logger.Warn("failed to release workspace lock", "root", root, "err", err)
		}
	}, nil
}

func (h *Harness) abort(runID uint64, cause error) (domain.TestRun, error) {
	ev := domain.NewLogEvent(runID, domain.OriginSystem, domain.SeverityError, fmt.Sprintf("Error preparing run: %v", cause))
	if err := h.machine.Abort(runID, cause, &ev); err != nil {
		return domain.TestRun{}, errors.Join(cause, err)
	}
	run, _ := h.machine.Current()
	return run, cause
}

// Cancel requests termination of the running process. It never blocks, and is
// a no-op unless the state is Running.
func (h *Harness) Cancel() {
	h.orch.Cancel()
}

// Kill terminates the running process immediately. The run still ends Stopped.
func (h *Harness) Kill() {
	h.orch.Kill()
}

// Acknowledge returns a finished run to Ready. It is a no-op in Ready.
func (h *Harness) Acknowledge() error {
	return h.machine.Acknowledge()
}

// Wait blocks until the current run is terminal or ctx is done.
func (h *Harness) Wait(ctx context.Context) error {
	select {
	case <-h.machine.Finished():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels an active run, waits for it to finish (bounded by ctx) and
// closes the event stream once every pending event is delivered. A run still
// being prepared is aborted, or stopped as soon as its process launches.
func (h *Harness) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.machine.Close()
	h.closeNow()
	h.Cancel()
	err := h.Wait(ctx)
	h.sink.Close()
	return err
}

func (h *Harness) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Harness) system(sev domain.Severity, text string) {
	h.machine.System(domain.NewLogEvent(0, domain.OriginSystem, sev, text))
}
