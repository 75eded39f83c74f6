package domain

import (
	"context"
	"time"
)

// Origin identifies where a line of output came from.
type Origin string

const (
	OriginStdout Origin = "stdout"
	OriginStderr Origin = "stderr"
	OriginSystem Origin = "system" // Harness diagnostics
)

// Severity is the classification of a LogEvent.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEvent is one classified line. It is immutable once constructed.
type LogEvent struct {
	RunID     uint64    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Origin    Origin    `json:"origin"`
	Severity  Severity  `json:"severity"`
	Text      string    `json:"text"`
}

// StateEvent records a run state transition.
type StateEvent struct {
	RunID     uint64    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	From      RunState  `json:"from"`
	To        RunState  `json:"to"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// Terminal reports whether the transition ends the run.
func (e StateEvent) Terminal() bool {
	return e.To.IsTerminal()
}

// EventKind discriminates the Event envelope.
type EventKind string

const (
	EventLog   EventKind = "log"
	EventState EventKind = "state"
)

// Event is the envelope delivered to the consumer. Exactly one of Log or State is set.
type Event struct {
	Seq   uint64      `json:"seq"`
	Kind  EventKind   `json:"kind"`
	Log   *LogEvent   `json:"log,omitempty"`
	State *StateEvent `json:"state,omitempty"`
}

// RunID returns the run the event belongs to.
func (e Event) RunID() uint64 {
	switch {
	case e.Log != nil:
		return e.Log.RunID
	case e.State != nil:
		return e.State.RunID
	}
	return 0
}

// NewLogEvent stamps a log line with the current time.
func NewLogEvent(runID uint64, origin Origin, severity Severity, text string) LogEvent {
	return LogEvent{
		RunID:     runID,
		Timestamp: time.Now(),
		Origin:    origin,
		Severity:  severity,
		Text:      text,
	}
}

// LogEnvelope wraps a LogEvent.
func LogEnvelope(ev LogEvent) Event {
	return Event{Kind: EventLog, Log: &ev}
}

// StateEnvelope wraps a StateEvent.
func StateEnvelope(ev StateEvent) Event {
	return Event{Kind: EventState, State: &ev}
}

// LifecycleHooks defines callbacks for harness observability.
// Hooks run on the producing goroutine and must not block.
type LifecycleHooks struct {
	OnTransition func(context.Context, StateEvent)
	OnLog        func(context.Context, LogEvent)
	OnRunFinish  func(context.Context, TestRun)
}
