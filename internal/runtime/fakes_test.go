package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
)

// recorder is a ports.Publisher keeping every event in order.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(ev domain.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = uint64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *recorder) states() []domain.RunState {
	var out []domain.RunState
	for _, ev := range r.all() {
		if ev.State != nil {
			out = append(out, ev.State.To)
		}
	}
	return out
}

// fakeProcess is an in-memory ports.Process driven by the test.
type fakeProcess struct {
	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	exited chan struct{}
	once   sync.Once
	code   int

	// honorTerm makes Terminate end the process.
	honorTerm    bool
	terminateErr error

	mu         sync.Mutex
	terminates int
	kills      int
}

func newFakeProcess() *fakeProcess {
	p := &fakeProcess{exited: make(chan struct{})}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.code = code
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		close(p.exited)
	})
}

func (p *fakeProcess) out(line string) { _, _ = fmt.Fprintln(p.stdoutW, line) }
func (p *fakeProcess) err(line string) { _, _ = fmt.Fprintln(p.stderrW, line) }

func (p *fakeProcess) Pid() int                { return 4242 }
func (p *fakeProcess) Stdout() io.Reader       { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader       { return p.stderrR }
func (p *fakeProcess) Exited() <-chan struct{} { return p.exited }

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminates++
	p.mu.Unlock()
	if p.terminateErr != nil {
		return p.terminateErr
	}
	if p.honorTerm {
		go p.exit(0)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	select {
	case <-p.exited:
		return os.ErrProcessDone
	default:
	}
	p.exit(-1)
	return nil
}

func (p *fakeProcess) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates, p.kills
}

// fakeLauncher returns a preset process or error and records launches.
type fakeLauncher struct {
	mu    sync.Mutex
	proc  ports.Process
	err   error
	specs []ports.LaunchSpec
}

func (l *fakeLauncher) Launch(_ context.Context, spec ports.LaunchSpec) (ports.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return nil, l.err
	}
	if l.proc == nil {
		return nil, errors.New("no process configured")
	}
	return l.proc, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.specs)
}

// waitFinished blocks until the machine's current run is terminal.
func waitFinished(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("run did not finish within %s", timeout)
	}
}
