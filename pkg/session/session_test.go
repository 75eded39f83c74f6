package session_test

import (
	"testing"
	"time"

	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource chan domain.Event

func (c chanSource) Events() <-chan domain.Event { return c }

func logEvent(seq, runID uint64, text string) domain.Event {
	ev := domain.LogEnvelope(domain.NewLogEvent(runID, domain.OriginStdout, domain.SeverityInfo, text))
	ev.Seq = seq
	return ev
}

func stateEvent(seq, runID uint64, from, to domain.RunState) domain.Event {
	ev := domain.StateEnvelope(domain.StateEvent{RunID: runID, From: from, To: to})
	ev.Seq = seq
	return ev
}

func TestSession_FanOut(t *testing.T) {
	src := make(chanSource)
	s := session.New(src)

	a, cancelA := s.Subscribe()
	defer cancelA()
	b, cancelB := s.Subscribe()
	defer cancelB()

	src <- logEvent(1, 1, "hello")

	for _, ch := range []<-chan domain.Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, uint64(1), ev.Seq)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestSession_RecentIsPerRun(t *testing.T) {
	src := make(chanSource)
	s := session.New(src, session.WithRecent(3))

	src <- logEvent(1, 0, "workspace")
	src <- logEvent(2, 1, "run 1 a")
	src <- logEvent(3, 1, "run 1 b")
	src <- logEvent(4, 1, "run 1 c")
	src <- stateEvent(5, 1, domain.StateRunning, domain.StateSucceeded)
	close(src)
	<-s.Done()

	recent := s.Recent(0)
	require.Len(t, recent, 3, "window is bounded")
	assert.Equal(t, uint64(3), recent[0].Seq)
	assert.Equal(t, domain.StateSucceeded, s.LastState())

	assert.Len(t, s.Recent(1), 1)
}

func TestSession_NewRunClearsWindow(t *testing.T) {
	src := make(chanSource)
	s := session.New(src)

	src <- logEvent(1, 1, "old run")
	src <- logEvent(2, 2, "new run")
	close(src)
	<-s.Done()

	recent := s.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, uint64(2), recent[0].RunID())
}

func TestSession_SlowSubscriberDisconnected(t *testing.T) {
	src := make(chanSource)
	s := session.New(src, session.WithSubscriberBuffer(1))

	slow, cancel := s.Subscribe()
	defer cancel()

	src <- logEvent(1, 1, "a")
	src <- logEvent(2, 1, "b")
	src <- logEvent(3, 1, "c") // forces dispatch of b to complete first

	ev, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, uint64(1), ev.Seq)
	_, ok = <-slow
	assert.False(t, ok, "slow subscriber is closed instead of skipping events")
}

func TestSession_ClosesSubscribersAtEnd(t *testing.T) {
	src := make(chanSource)
	s := session.New(src)
	ch, cancel := s.Subscribe()

	close(src)
	<-s.Done()
	_, ok := <-ch
	assert.False(t, ok)
	cancel() // safe after close

	late, _ := s.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after the end yields a closed channel")
}
