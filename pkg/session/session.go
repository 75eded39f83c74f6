package session

import (
	"log/slog"
	"sync"

	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
)

const (
	// DefaultRecent is the number of events retained for the current run.
	DefaultRecent = 500
	// DefaultSubscriberBuffer is the channel capacity of each subscriber.
	DefaultSubscriberBuffer = 256
)

// Session consumes a harness event stream and fans it out.
// Safe for concurrent use.
type Session struct {
	mu          sync.RWMutex
	recent      []domain.Event
	recentSize  int
	runID       uint64
	last        domain.RunState
	subscribers map[chan domain.Event]struct{}
	bufSize     int

	done   chan struct{}
	logger *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithRecent sets how many events of the current run are retained.
func WithRecent(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.recentSize = n
		}
	}
}

// WithSubscriberBuffer sets the channel capacity of each subscriber.
func WithSubscriberBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New starts consuming src. The session ends when the source channel closes.
func New(src ports.EventSource, opts ...Option) *Session {
	s := &Session{
		recentSize:  DefaultRecent,
		bufSize:     DefaultSubscriberBuffer,
		subscribers: make(map[chan domain.Event]struct{}),
		done:        make(chan struct{}),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.consume(src.Events())
	return s
}

// Done is closed once the source is exhausted and every subscriber is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe registers a live subscriber. A subscriber that falls more than
// its buffer behind is disconnected (its channel closed) rather than skipped.
func (s *Session) Subscribe() (<-chan domain.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.Event, s.bufSize)
	select {
	case <-s.done:
		close(ch)
		return ch, func() {}
	default:
	}
	s.subscribers[ch] = struct{}{}

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

// Recent returns up to n retained events of the current run, oldest first.
// n <= 0 returns all of them.
func (s *Session) Recent(n int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.recent
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return append([]domain.Event(nil), events...)
}

// LastState returns the state named by the latest state event.
func (s *Session) LastState() domain.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Session) consume(events <-chan domain.Event) {
	for ev := range events {
		s.dispatch(ev)
	}

	s.mu.Lock()
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = map[chan domain.Event]struct{}{}
	close(s.done)
	s.mu.Unlock()
}

func (s *Session) dispatch(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The window only covers the current run; a new run starts it over.
	if id := ev.RunID(); id != 0 && id != s.runID {
		s.runID = id
		s.recent = nil
	}
	s.recent = append(s.recent, ev)
	if len(s.recent) > s.recentSize {
		s.recent = s.recent[len(s.recent)-s.recentSize:]
	}
	if ev.State != nil {
		s.last = ev.State.To
	}

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("subscriber too slow, disconnecting", "seq", ev.Seq, "buffer", s.bufSize)
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}
