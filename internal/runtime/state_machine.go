package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
)

// Machine is the authoritative run state.
//
// It owns the current TestRun and the ProcessHandle of the active process, both
// guarded by a single mutex that is never held across blocking I/O. Every
// event is published while the mutex is held, so the publish order is the
// transition order.
type Machine struct {
	mu sync.Mutex

	state    domain.RunState
	run      *domain.TestRun
	nextID   uint64
	busy     bool // admission or initialization in progress
	closing  bool
	handle   domain.ProcessHandle
	finished chan struct{}

	pub    ports.Publisher
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithMachineLogger configures the structured logger.
func WithMachineLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) MachineOption {
	return func(m *Machine) {
		m.hooks = hooks
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates a Machine in the Idle state publishing to pub.
func NewMachine(pub ports.Publisher, opts ...MachineOption) *Machine {
	closed := make(chan struct{})
	close(closed)
	m := &Machine{
		state:    domain.StateIdle,
		pub:      pub,
		logger:   logging.NewNop(),
		now:      time.Now,
		finished: closed,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var allowedTransitions = map[domain.RunState][]domain.RunState{
	domain.StateIdle:      {domain.StateReady},
	domain.StateReady:     {domain.StateReady, domain.StateRunning, domain.StateErrored},
	domain.StateRunning:   {domain.StateStopping, domain.StateSucceeded, domain.StateFailed, domain.StateErrored},
	domain.StateStopping:  {domain.StateStopped, domain.StateErrored},
	domain.StateSucceeded: {domain.StateReady},
	domain.StateFailed:    {domain.StateReady},
	domain.StateStopped:   {domain.StateReady},
	domain.StateErrored:   {domain.StateReady},
}

// CanTransition reports whether from -> to is a valid transition.
func CanTransition(from, to domain.RunState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// State returns the current state.
func (m *Machine) State() domain.RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a snapshot of the tracked run, if any.
func (m *Machine) Current() (domain.TestRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return domain.TestRun{}, false
	}
	return m.run.Snapshot(), true
}

// Finished returns a channel closed once the tracked run is terminal.
func (m *Machine) Finished() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// BeginInitialize reserves the machine for workspace initialization.
// It fails with domain.ErrAlreadyRunning while a run is active or being admitted.
func (m *Machine) BeginInitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy || m.state.IsActive() {
		return fmt.Errorf("%w: cannot initialize workspace in state %s", domain.ErrAlreadyRunning, m.state)
	}
	m.busy = true
	return nil
}

// EndInitialize releases the reservation. On success the machine moves to Ready.
func (m *Machine) EndInitialize(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if err != nil {
		return err
	}
	if m.state == domain.StateReady {
		return nil
	}
	return m.transition(domain.StateReady, nil, "")
}

// Admit reserves a new run. It succeeds only in Ready; any other state fails
// with domain.ErrAlreadyRunning, and Idle additionally matches domain.ErrNotInitialized.
// The visible state stays Ready until Launched or Abort.
func (m *Machine) Admit() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closing:
		return 0, domain.ErrClosed
	case m.busy:
		return 0, fmt.Errorf("%w: another request is being admitted", domain.ErrAlreadyRunning)
	case m.state == domain.StateIdle:
		return 0, fmt.Errorf("%w: %w", domain.ErrAlreadyRunning, domain.ErrNotInitialized)
	case m.state != domain.StateReady:
		return 0, fmt.Errorf("%w: state is %s", domain.ErrAlreadyRunning, m.state)
	}

	m.nextID++
	m.busy = true
	m.run = &domain.TestRun{
		ID:        m.nextID,
		State:     domain.StateReady,
		StartedAt: m.now(),
	}
	m.finished = make(chan struct{})
	m.logger.Debug("run admitted", "run_id", m.run.ID)
	return m.run.ID, nil
}

// Launched records the spawned process and moves Ready -> Running.
// If the machine was closed while the run was being prepared, the run moves on
// to Stopping and stop is true: the caller must terminate the process.
func (m *Machine) Launched(runID uint64, handle domain.ProcessHandle) (stop bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRun(runID); err != nil {
		return false, err
	}
	m.busy = false
	m.handle = handle
	m.run.StartedAt = m.now()
	if err := m.transition(domain.StateRunning, nil, ""); err != nil {
		return false, err
	}
	if !m.closing {
		return false, nil
	}
	m.run.CancelRequested = true
	if err := m.transition(domain.StateStopping, nil, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Close rejects further admissions. A run admitted before Close is stopped as
// soon as it launches.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closing = true
}

// Closing reports whether Close was called.
func (m *Machine) Closing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

// Abort ends an admitted run that never launched: Ready -> Errored.
// The event, if set, is published before the state change.
func (m *Machine) Abort(runID uint64, cause error, ev *domain.LogEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRun(runID); err != nil {
		return err
	}
	m.busy = false
	if ev != nil {
		m.publishLog(*ev)
	}
	return m.finish(domain.StateErrored, nil, cause)
}

// Log publishes a log line for runID. Lines for a run that is no longer
// tracked, or already terminal, are dropped and false is returned.
func (m *Machine) Log(runID uint64, ev domain.LogEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil || m.run.ID != runID || m.run.State.IsTerminal() {
		return false
	}
	ev.RunID = runID
	return m.publishLog(ev)
}

// System publishes a log line not tied to any run.
func (m *Machine) System(ev domain.LogEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.RunID = 0
	return m.publishLog(ev)
}

// RequestCancel moves Running -> Stopping and returns the process to signal.
// It is a no-op returning false in any other state.
func (m *Machine) RequestCancel() (uint64, domain.ProcessHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.StateRunning {
		return 0, nil, false
	}
	m.run.CancelRequested = true
	if err := m.transition(domain.StateStopping, nil, ""); err != nil {
		return 0, nil, false
	}
	return m.run.ID, m.handle, true
}

// Active returns the process of a Running or Stopping run.
func (m *Machine) Active() (uint64, domain.ProcessHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.IsActive() || m.handle == nil {
		return 0, nil, false
	}
	return m.run.ID, m.handle, true
}

// Summary builds the final event of a run given its terminal state.
type Summary func(state domain.RunState, exitCode int, cause error) *domain.LogEvent

// Complete ends an active run once both streams are drained and the process is
// reaped. A stream fault yields Errored, a pending cancellation yields Stopped,
// otherwise the exit code decides between Succeeded and Failed. A negative exit
// code means the process was killed by a signal; the run fails with
// domain.ErrTerminatedBySignal recorded as its error.
func (m *Machine) Complete(runID uint64, exitCode int, cause error, summary Summary) (domain.TestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRun(runID); err != nil {
		return domain.TestRun{}, err
	}

	var to domain.RunState
	switch {
	case cause != nil:
		to = domain.StateErrored
	case m.state == domain.StateStopping:
		to = domain.StateStopped
	case exitCode == 0:
		to = domain.StateSucceeded
	default:
		to = domain.StateFailed
	}

	if summary != nil {
		if ev := summary(to, exitCode, cause); ev != nil {
			ev.RunID = runID
			m.publishLog(*ev)
		}
	}

	var code *int
	if exitCode >= 0 {
		code = &exitCode
	} else if to == domain.StateFailed {
		cause = domain.ErrTerminatedBySignal
	}
	m.handle = nil
	if err := m.finish(to, code, cause); err != nil {
		return domain.TestRun{}, err
	}
	return m.run.Snapshot(), nil
}

// Acknowledge returns a terminal run to Ready. It is a no-op in Ready and an
// error in any other state.
func (m *Machine) Acknowledge() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.state == domain.StateReady:
		return nil
	case m.state.IsTerminal():
		return m.transition(domain.StateReady, nil, "")
	default:
		return fmt.Errorf("%w: cannot acknowledge in state %s", domain.ErrInvalidTransition, m.state)
	}
}

func (m *Machine) checkRun(runID uint64) error {
	if m.run == nil || m.run.ID != runID {
		return fmt.Errorf("%w: %d", domain.ErrUnknownRun, runID)
	}
	return nil
}

func (m *Machine) finish(to domain.RunState, code *int, cause error) error {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	at := m.now()
	m.run.FinishedAt = &at
	m.run.ExitCode = code
	m.run.Err = errText
	if err := m.transition(to, code, errText); err != nil {
		return err
	}
	close(m.finished)

	run := m.run.Snapshot()
	m.logger.Info("run finished",
		"run_id", run.ID,
		"state", run.State,
		"exit_code", code,
		"duration", run.Duration(),
	)
	if m.hooks.OnRunFinish != nil {
		m.hooks.OnRunFinish(context.Background(), run)
	}
	return nil
}

// transition must be called with mu held.
func (m *Machine) transition(to domain.RunState, code *int, errText string) error {
	from := m.state
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	m.state = to

	var runID uint64
	if m.run != nil {
		runID = m.run.ID
		// A finished run keeps its terminal state after acknowledgement.
		if !m.run.State.IsTerminal() {
			m.run.State = to
		}
	}
	ev := domain.StateEvent{
		RunID:     runID,
		Timestamp: m.now(),
		From:      from,
		To:        to,
		ExitCode:  code,
		Err:       errText,
	}
	m.pub.Publish(domain.StateEnvelope(ev))
	m.logger.Debug("state transition", "run_id", runID, "from", from, "to", to)
	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(context.Background(), ev)
	}
	return nil
}

func (m *Machine) publishLog(ev domain.LogEvent) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}
	ok := m.pub.Publish(domain.LogEnvelope(ev))
	if ok && m.hooks.OnLog != nil {
		m.hooks.OnLog(context.Background(), ev)
	}
	return ok
}
