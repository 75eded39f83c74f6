package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/session"
	"github.com/aretw0/crucible/pkg/workspace"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHarness struct {
	mu        sync.Mutex
	state     domain.RunState
	started   [][]domain.StagedArtifact
	cancelled int
	acked     int
	startErr  error
}

func (f *fakeHarness) Initialize(string, workspace.Mode) error { return nil }

func (f *fakeHarness) StartRun(_ context.Context, artifacts ...domain.StagedArtifact) (domain.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != domain.StateReady {
		return domain.TestRun{}, domain.ErrAlreadyRunning
	}
	f.started = append(f.started, artifacts)
	if f.startErr != nil {
		f.state = domain.StateErrored
		return domain.TestRun{ID: 1, State: domain.StateErrored}, f.startErr
	}
	f.state = domain.StateRunning
	return domain.TestRun{ID: 1, State: domain.StateRunning}, nil
}

func (f *fakeHarness) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	if f.state == domain.StateRunning {
		f.state = domain.StateStopping
	}
}

func (f *fakeHarness) Acknowledge() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked++
	f.state = domain.StateReady
	return nil
}

func (f *fakeHarness) State() domain.RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeHarness) Current() (domain.TestRun, bool) {
	return domain.TestRun{ID: 1, State: f.State()}, true
}

type chanSource chan domain.Event

func (c chanSource) Events() <-chan domain.Event { return c }

func newTestServer(t *testing.T, h *fakeHarness) (*Server, chanSource, *session.Session) {
	t.Helper()
	src := make(chanSource)
	sess := session.New(src)
	t.Cleanup(func() { close(src) })
	return NewServer(h, sess, nil), src, sess
}

func TestStartRun_StagesSources(t *testing.T) {
	h := &fakeHarness{state: domain.StateFailed}
	s, _, _ := newTestServer(t, h)

	res, err := s.handleStartRun(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"contract": "contract A {}",
		"test":     "it('works')",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, res.State)
	assert.Equal(t, 1, h.acked, "a finished run is acknowledged first")

	require.Len(t, h.started, 1)
	require.Len(t, h.started[0], 2)
	assert.Equal(t, domain.SlotContract, h.started[0][0].Slot)
	assert.Equal(t, "it('works')", string(h.started[0][1].Content))
}

func TestStartRun_Rejected(t *testing.T) {
	h := &fakeHarness{state: domain.StateRunning}
	s, _, _ := newTestServer(t, h)

	_, err := s.handleStartRun(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{})
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
}

func TestStartRun_FaultReportsRun(t *testing.T) {
	h := &fakeHarness{state: domain.StateReady, startErr: domain.ErrToolNotFound}
	s, _, _ := newTestServer(t, h)

	res, err := s.handleStartRun(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateErrored, res.State)
	assert.Contains(t, res.Error, domain.ErrToolNotFound.Error())
}

func TestCancelAndStatus(t *testing.T) {
	h := &fakeHarness{state: domain.StateRunning}
	s, _, _ := newTestServer(t, h)

	res, err := s.handleCancelRun(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateStopping, res.State)
	assert.Equal(t, 1, h.cancelled)

	res, err = s.handleRunStatus(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.Equal(t, uint64(1), res.Run.ID)
}

func TestRecentEvents(t *testing.T) {
	s, src, sess := newTestServer(t, &fakeHarness{state: domain.StateRunning})

	res, err := s.handleRecentEvents(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	for i := 1; i <= 5; i++ {
		ev := domain.LogEnvelope(domain.NewLogEvent(1, domain.OriginStdout, domain.SeverityInfo, "line"))
		ev.Seq = uint64(i)
		src <- ev
	}
	require.Eventually(t, func() bool { return len(sess.Recent(0)) == 5 }, time.Second, 5*time.Millisecond)

	res, err = s.handleRecentEvents(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{"limit": float64(2)})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, uint64(4), res.Events[0].Seq)
}

func TestStatusError(t *testing.T) {
	// errors from the harness never escape as panics
	h := &fakeHarness{state: domain.StateReady, startErr: errors.New("boom")}
	s, _, _ := newTestServer(t, h)
	res, err := s.handleStartRun(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "boom", res.Error)
}
