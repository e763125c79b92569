package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// ErrClosed is returned by Next after the consumer closed the stream.
var ErrClosed = errors.New("stream closed")

// StreamError is the terminal error of a session the producer failed.
type StreamError struct {
	Token  string
	Reason string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s failed: %s", e.Token, e.Reason)
}

// Stream is the consumer side of a session. It is meant for a single
// consumer goroutine; Close may be called from anywhere.
type Stream struct {
	bridge *Bridge
	sess   *session

	closeOnce sync.Once
}

// Token identifies the session to producers.
func (s *Stream) Token() string { return s.sess.token }

// State returns the session state as the consumer sees it.
func (s *Stream) State() State { return s.sess.currentState() }

// Next blocks until the next event is available and returns it.
//
// After an End it returns io.EOF once the queue is drained. After a Fail it
// returns the queued events, then a *StreamError once, then io.EOF. If ctx is
// done first, Next returns ctx.Err() and the session stays open.
func (s *Stream) Next(ctx context.Context) (string, error) {
	sess := s.sess
	for {
		sess.mu.Lock()
		if len(sess.queue) > 0 {
			ev := sess.queue[0]
			sess.queue[0] = ""
			sess.queue = sess.queue[1:]
			sess.mu.Unlock()
			return ev, nil
		}
		switch sess.state {
		case StateEnded:
			sess.surfaced = true
			sess.mu.Unlock()
			s.release("ended")
			return "", io.EOF
		case StateErrored:
			if sess.surfaced {
				sess.mu.Unlock()
				return "", io.EOF
			}
			sess.surfaced = true
			reason := sess.reason
			sess.mu.Unlock()
			s.release("failed")
			return "", &StreamError{Token: sess.token, Reason: reason}
		case StateCancelled:
			sess.mu.Unlock()
			return "", ErrClosed
		}
		sess.mu.Unlock()

		select {
		case <-sess.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close cancels the session if it is still live. Later producer calls for
// its token are silently dropped. Close is idempotent.
func (s *Stream) Close() error {
	s.sess.cancel()
	s.release("closed")
	return nil
}

func (s *Stream) release(why string) {
	s.closeOnce.Do(func() { s.bridge.remove(s.sess, why) })
}

// All returns a single-use iterator over the stream's events. A failed
// session yields one final ("", *StreamError) pair; a done ctx yields
// ("", ctx.Err()). Breaking out of the loop closes the stream.
func (s *Stream) All(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			ev, err := s.Next(ctx)
			switch {
			case err == nil:
				if !yield(ev, nil) {
					s.Close()
					return
				}
			case errors.Is(err, io.EOF), errors.Is(err, ErrClosed):
				return
			default:
				yield("", err)
				s.Close()
				return
			}
		}
	}
}

// Collect drains the stream into a slice. It returns the events received
// before any terminal error along with that error.
func (s *Stream) Collect(ctx context.Context) ([]string, error) {
	var out []string
	for ev, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}
