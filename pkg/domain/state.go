package domain

import "time"

// RunState is the authoritative lifecycle position of the harness.
type RunState string

const (
	StateIdle     RunState = "idle"     // No workspace initialized
	StateReady    RunState = "ready"    // Workspace initialized, no run active
	StateRunning  RunState = "running"  // Process spawned, streams being drained
	StateStopping RunState = "stopping" // Cancellation requested, process not yet confirmed dead

	StateSucceeded RunState = "succeeded" // Exit code 0
	StateFailed    RunState = "failed"    // Nonzero exit code
	StateStopped   RunState = "stopped"   // Terminated on user request
	StateErrored   RunState = "errored"   // Tool missing, spawn or stream failure
)

// IsTerminal reports whether the state ends a run.
func (s RunState) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateStopped, StateErrored:
		return true
	default:
		return false
	}
}

// IsActive reports whether a process is (or may still be) alive for the run.
func (s RunState) IsActive() bool {
	return s == StateRunning || s == StateStopping
}

// TestRun identifies one execution attempt.
type TestRun struct {
	// ID increases monotonically for the lifetime of a harness.
	ID uint64 `json:"id"`

	State RunState `json:"state"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// ExitCode is set only once the run is terminal and the process reported one.
	ExitCode *int `json:"exit_code,omitempty"`

	CancelRequested bool `json:"cancel_requested"`

	// Err describes the fault of an Errored run.
	Err string `json:"error,omitempty"`
}

// Snapshot returns a copy that shares no pointers with the receiver.
func (r TestRun) Snapshot() TestRun {
	out := r
	if r.ExitCode != nil {
		code := *r.ExitCode
		out.ExitCode = &code
	}
	if r.FinishedAt != nil {
		at := *r.FinishedAt
		out.FinishedAt = &at
	}
	return out
}

// Duration returns the elapsed run time, measured to now for unfinished runs.
func (r TestRun) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
