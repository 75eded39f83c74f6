package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/crucible/internal/runtime"
	"github.com/aretw0/crucible/pkg/classify"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReadyMachine(t *testing.T) (*runtime.Machine, *recorder) {
	t.Helper()
	rec := &recorder{}
	m := runtime.NewMachine(rec)
	require.NoError(t, m.BeginInitialize())
	require.NoError(t, m.EndInitialize(nil))
	return m, rec
}

func startFake(t *testing.T, m *runtime.Machine, o *runtime.Orchestrator, release func()) uint64 {
	t.Helper()
	id, err := m.Admit()
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background(), id, runtime.RunSpec{
		Tool:    "fake",
		Launch:  ports.LaunchSpec{Command: "fake", Dir: t.TempDir()},
		Markers: classify.DefaultMarkers(),
		Release: release,
	}))
	return id
}

func logTexts(events []domain.Event) map[string]domain.Severity {
	out := map[string]domain.Severity{}
	for _, ev := range events {
		if ev.Log != nil {
			out[ev.Log.Text] = ev.Log.Severity
		}
	}
	return out
}

func TestOrchestrator_StreamsAndSucceeds(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc})

	id := startFake(t, m, o, nil)
	assert.Equal(t, domain.StateRunning, m.State(), "Start returns once the process is running")

	proc.out("  Contract: SimpleStorage")
	proc.out("    ✓ should store the value 89.")
	proc.out("")
	proc.out("\x1b[32m  1 passing (1s)\x1b[0m")
	proc.err("npm warn deprecated")
	_, _ = fmt.Fprint(proc.stdoutW, "partial tail")
	proc.exit(0)

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.Equal(t, domain.StateSucceeded, m.State())

	events := rec.all()
	texts := logTexts(events)
	assert.Equal(t, domain.SeverityInfo, texts["Starting fake tests..."])
	assert.Equal(t, domain.SeverityInfo, texts["  Contract: SimpleStorage"])
	assert.Equal(t, domain.SeveritySuccess, texts["    ✓ should store the value 89."])
	assert.Equal(t, domain.SeveritySuccess, texts["  1 passing (1s)"], "ANSI sequences are stripped before classification")
	assert.Equal(t, domain.SeverityError, texts["npm warn deprecated"], "stderr is always an error")
	assert.Equal(t, domain.SeverityInfo, texts["partial tail"], "unterminated final line is flushed")
	assert.Equal(t, domain.SeveritySuccess, texts["All tests passed successfully!"])
	_, blank := texts[""]
	assert.False(t, blank, "blank lines are not emitted")

	last := events[len(events)-1]
	require.NotNil(t, last.State)
	assert.Equal(t, domain.StateSucceeded, last.State.To)
	require.NotNil(t, last.State.ExitCode)
	assert.Equal(t, 0, *last.State.ExitCode)

	for _, ev := range events {
		if ev.Log != nil && ev.Log.Text != "" {
			assert.Equal(t, id, ev.RunID())
		}
	}
}

func TestOrchestrator_NonZeroExitFails(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc})

	startFake(t, m, o, nil)
	proc.out("  1 failing")
	proc.exit(1)

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.Equal(t, domain.StateFailed, m.State())
	texts := logTexts(rec.all())
	assert.Equal(t, domain.SeverityError, texts["  1 failing"])
	assert.Equal(t, domain.SeverityError, texts["Tests failed (exit code 1)"])
}

func TestOrchestrator_CancelGraceful(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	proc.honorTerm = true
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc}, runtime.WithGracePeriod(time.Second))

	startFake(t, m, o, nil)
	o.Cancel()
	o.Cancel() // idempotent

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.Equal(t, domain.StateStopped, m.State())
	assert.Equal(t, []domain.RunState{domain.StateReady, domain.StateRunning, domain.StateStopping, domain.StateStopped}, rec.states())

	terms, kills := proc.counts()
	assert.Equal(t, 1, terms)
	assert.Equal(t, 0, kills)
	texts := logTexts(rec.all())
	assert.Equal(t, domain.SeverityWarning, texts["Stopping tests..."])
	assert.Equal(t, domain.SeverityWarning, texts["Tests stopped by user"])

	var stopping int
	for _, ev := range rec.all() {
		if ev.Log != nil && ev.Log.Text == "Stopping tests..." {
			stopping++
		}
	}
	assert.Equal(t, 1, stopping, "a repeated cancel publishes nothing")
}

func TestOrchestrator_SignalledExitFails(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc})

	startFake(t, m, o, nil)
	proc.exit(-1)

	waitFinished(t, m.Finished(), 2*time.Second)
	run, _ := m.Current()
	assert.Equal(t, domain.StateFailed, run.State)
	assert.Nil(t, run.ExitCode)
	assert.Equal(t, domain.ErrTerminatedBySignal.Error(), run.Err)

	texts := logTexts(rec.all())
	assert.Equal(t, domain.SeverityError, texts["Tests terminated by signal"])
	_, ok := texts["Tests failed (exit code -1)"]
	assert.False(t, ok)
}

func TestOrchestrator_StartWhileClosingStops(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	proc.honorTerm = true
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc}, runtime.WithGracePeriod(time.Second))

	id, err := m.Admit()
	require.NoError(t, err)
	m.Close()
	require.NoError(t, o.Start(context.Background(), id, runtime.RunSpec{
		Tool:    "fake",
		Launch:  ports.LaunchSpec{Command: "fake", Dir: t.TempDir()},
		Markers: classify.DefaultMarkers(),
	}))

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.Equal(t, domain.StateStopped, m.State())
	assert.Equal(t, []domain.RunState{domain.StateReady, domain.StateRunning, domain.StateStopping, domain.StateStopped}, rec.states())
	terms, _ := proc.counts()
	assert.Equal(t, 1, terms)
}

func TestOrchestrator_CancelForcesKillAfterGrace(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc}, runtime.WithGracePeriod(150*time.Millisecond))

	startFake(t, m, o, nil)
	start := time.Now()
	o.Cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.StateStopping, m.State(), "still waiting for the grace period")

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, domain.StateStopped, m.State())

	terms, kills := proc.counts()
	assert.Equal(t, 1, terms)
	assert.Equal(t, 1, kills)

	var warned bool
	for text, sev := range logTexts(rec.all()) {
		if strings.Contains(text, "forcing termination") {
			warned = sev == domain.SeverityWarning
		}
	}
	assert.True(t, warned, "forced kill is reported as a warning")
}

func TestOrchestrator_TerminateUnsupportedKillsImmediately(t *testing.T) {
	m, _ := newReadyMachine(t)
	proc := newFakeProcess()
	proc.terminateErr = errors.New("not supported")
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc}, runtime.WithGracePeriod(time.Hour))

	startFake(t, m, o, nil)
	o.Cancel()

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.Equal(t, domain.StateStopped, m.State())
	_, kills := proc.counts()
	assert.Equal(t, 1, kills)
}

func TestOrchestrator_KillSkipsGrace(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc}, runtime.WithGracePeriod(time.Hour))

	startFake(t, m, o, nil)
	o.Cancel()
	o.Kill()

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.Equal(t, domain.StateStopped, m.State())
	assert.Equal(t, []domain.RunState{domain.StateReady, domain.StateRunning, domain.StateStopping, domain.StateStopped}, rec.states())
	_, kills := proc.counts()
	assert.Equal(t, 1, kills)

	o.Kill() // no active run
	_, kills = proc.counts()
	assert.Equal(t, 1, kills)
}

func TestOrchestrator_CancelWhenNotRunningIsNoOp(t *testing.T) {
	m, rec := newReadyMachine(t)
	launcher := &fakeLauncher{proc: newFakeProcess()}
	o := runtime.NewOrchestrator(m, launcher)

	before := len(rec.all())
	o.Cancel()
	assert.Equal(t, domain.StateReady, m.State())
	assert.Len(t, rec.all(), before)
	assert.Zero(t, launcher.launches())
}

func TestOrchestrator_LaunchFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"Tool Not Found", fmt.Errorf("%w: truffle", domain.ErrToolNotFound), "npm install -g truffle"},
		{"Spawn Failure", fmt.Errorf("%w: permission denied", domain.ErrSpawnFailure), "Error running truffle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newReadyMachine(t)
			o := runtime.NewOrchestrator(m, &fakeLauncher{err: tt.err})

			released := false
			id, err := m.Admit()
			require.NoError(t, err)
			err = o.Start(context.Background(), id, runtime.RunSpec{
				Tool:        "truffle",
				Launch:      ports.LaunchSpec{Command: "truffle"},
				InstallHint: "Run: npm install -g truffle",
				Release:     func() { released = true },
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, released)

			assert.Equal(t, domain.StateErrored, m.State())
			assert.Equal(t, []domain.RunState{domain.StateReady, domain.StateErrored}, rec.states(), "Running is never observed")

			events := rec.all()
			errEvent := events[len(events)-2]
			require.NotNil(t, errEvent.Log)
			assert.Equal(t, domain.SeverityError, errEvent.Log.Severity)
			assert.Contains(t, errEvent.Log.Text, tt.wantMsg)

			run, _ := m.Current()
			assert.NotEmpty(t, run.Err)
			assert.Nil(t, run.ExitCode)
		})
	}
}

func TestOrchestrator_StreamFaultErrors(t *testing.T) {
	m, rec := newReadyMachine(t)
	proc := newFakeProcess()
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc})

	startFake(t, m, o, nil)
	proc.out("before fault")
	_ = proc.stdoutW.CloseWithError(errors.New("broken pipe"))

	waitFinished(t, m.Finished(), 2*time.Second)
	assert.Equal(t, domain.StateErrored, m.State())

	_, kills := proc.counts()
	assert.Equal(t, 1, kills, "a stream fault kills the process")

	run, _ := m.Current()
	assert.Contains(t, run.Err, domain.ErrStreamIO.Error())

	events := rec.all()
	texts := logTexts(events)
	assert.Equal(t, domain.SeverityInfo, texts["before fault"])
	last := events[len(events)-1]
	require.NotNil(t, last.State)
	assert.Equal(t, domain.StateErrored, last.State.To)
}

func TestOrchestrator_ReleaseBeforeTerminal(t *testing.T) {
	m, _ := newReadyMachine(t)
	proc := newFakeProcess()
	o := runtime.NewOrchestrator(m, &fakeLauncher{proc: proc})

	var mu sync.Mutex
	var stateAtRelease domain.RunState
	startFake(t, m, o, func() {
		mu.Lock()
		defer mu.Unlock()
		stateAtRelease = m.State()
	})
	proc.exit(0)

	waitFinished(t, m.Finished(), 2*time.Second)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domain.StateRunning, stateAtRelease)
}
