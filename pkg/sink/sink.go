// Package sink delivers harness events from producers to a single consumer.
//
// Publishing never blocks and never drops: events are queued in order and a
// pump goroutine hands them to the consumer channel as fast as it reads.
package sink

import (
	"log/slog"
	"sync"

	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/domain"
)

// DefaultHighWater is the backlog size that triggers a slow-consumer warning.
const DefaultHighWater = 10000

// Sink is an ordered, unbounded, single-consumer event queue.
// Safe for concurrent use by producers.
type Sink struct {
	mu     sync.Mutex
	queue  []domain.Event
	seq    uint64
	closed bool

	wake chan struct{}
	out  chan domain.Event

	highWater int
	warnedRun uint64
	warned    bool
	logger    *slog.Logger
}

// Option configures the Sink.
type Option func(*Sink)

// WithHighWater sets the backlog size that logs a warning. Zero disables it.
func WithHighWater(n int) Option {
	return func(s *Sink) {
		s.highWater = n
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New creates a Sink and starts its delivery pump.
func New(opts ...Option) *Sink {
	s := &Sink{
		wake:      make(chan struct{}, 1),
		out:       make(chan domain.Event),
		highWater: DefaultHighWater,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.pump()
	return s
}

// Publish enqueues an event and assigns its sequence number.
// It returns false if the sink is closed.
func (s *Sink) Publish(ev domain.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.seq++
	ev.Seq = s.seq
	s.queue = append(s.queue, ev)
	backlog := len(s.queue)
	runID := ev.RunID()
	if s.highWater > 0 && backlog >= s.highWater && !(s.warned && s.warnedRun == runID) {
		s.warned, s.warnedRun = true, runID
		s.logger.Warn("event consumer falling behind", "backlog", backlog, "run_id", runID)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Events returns the ordered delivery channel. It is closed after Close once
// every queued event has been delivered. There must be exactly one reader.
func (s *Sink) Events() <-chan domain.Event {
	return s.out
}

// Len returns the number of queued, undelivered events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops accepting events. Already queued events are still delivered.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sink) pump() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			// Reuse the backing array once drained.
			s.queue = s.queue[:0]
			if s.closed {
				s.mu.Unlock()
				close(s.out)
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		ev := s.queue[0]
		s.queue[0] = domain.Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.out <- ev
	}
}
