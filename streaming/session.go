package streaming

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of a stream session.
type State int

const (
	StateOpen State = iota
	StateEnded
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// session is one producer/consumer queue. The queue is unbounded so that a
// producer never blocks on a slow consumer.
type session struct {
	token string

	mu     sync.Mutex
	queue  []string
	state  State
	reason string
	// surfaced is set once the terminal error has been handed to the consumer.
	surfaced bool

	// notify has capacity one; a pending value means "look again".
	notify chan struct{}
}

func newSession(token string) *session {
	return &session{token: token, notify: make(chan struct{}, 1)}
}

func (s *session) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *session) push(event string) bool {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *session) end() bool {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return false
	}
	s.state = StateEnded
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *session) fail(reason string) bool {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return false
	}
	s.state = StateErrored
	s.reason = reason
	s.mu.Unlock()
	s.signal()
	return true
}

// cancel drops anything still queued. A session that has already surfaced
// its terminal outcome keeps its state.
func (s *session) cancel() {
	s.mu.Lock()
	s.queue = nil
	if s.state == StateOpen || !s.surfaced {
		s.state = StateCancelled
	}
	s.mu.Unlock()
	s.signal()
}

func (s *session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
