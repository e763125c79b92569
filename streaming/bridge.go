package streaming

import (
	"context"
	"log/slog"
	"sync"

	"github.com/HPD-AI/HPD-Agent-Framework/internal/logctx"
	"github.com/google/uuid"
)

// Sink receives push-style stream notifications addressed by session token.
// Implementations must be safe to call from any goroutine, including ones
// the consumer does not control, and must not report errors to the producer:
// pushes to a session that is gone are dropped.
type Sink interface {
	Push(token, event string)
	End(token string)
	Fail(token, reason string)
}

// Bridge correlates session tokens with per-session ordered queues. A
// producer addresses a session through the Sink methods; the consumer drains
// it through the Stream returned by Open.
//
// Sessions are independent: the bridge lock only guards the token table and
// is never held while a session's queue is touched.
type Bridge struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
}

var _ Sink = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for session lifecycle records.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBridge returns an empty Bridge.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		sessions: make(map[string]*session),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open creates a new session and returns its consumer side. The session's
// token (Stream.Token) is what the producer passes to Push, End and Fail.
func (b *Bridge) Open(ctx context.Context) *Stream {
	s := newSession(uuid.NewString())

	b.mu.Lock()
	b.sessions[s.token] = s
	b.mu.Unlock()

	ctx = logctx.WithStreamData(ctx, &logctx.StreamData{Token: s.token})
	b.logger.DebugContext(ctx, "stream opened")
	return &Stream{bridge: b, sess: s}
}

// Push appends event to the session's queue. It is a no-op if the token is
// unknown or the session is no longer open.
func (b *Bridge) Push(token, event string) {
	if s := b.lookup(token); s != nil {
		s.push(event)
	}
}

// End marks the session ended. Events already queued are still delivered.
func (b *Bridge) End(token string) {
	if s := b.lookup(token); s != nil {
		s.end()
	}
}

// Fail marks the session errored. The consumer receives the queued events,
// then a *StreamError carrying reason.
func (b *Bridge) Fail(token, reason string) {
	if s := b.lookup(token); s != nil {
		s.fail(reason)
	}
}

// State reports the state of a live session. Sessions are forgotten once the
// consumer has drained or closed them.
func (b *Bridge) State(token string) (State, bool) {
	s := b.lookup(token)
	if s == nil {
		return 0, false
	}
	return s.currentState(), true
}

// Len returns the number of live sessions.
func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

func (b *Bridge) lookup(token string) *session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[token]
}

func (b *Bridge) remove(s *session, why string) {
	b.mu.Lock()
	if cur, ok := b.sessions[s.token]; ok && cur == s {
		delete(b.sessions, s.token)
	}
	b.mu.Unlock()

	ctx := logctx.WithStreamData(context.Background(), &logctx.StreamData{Token: s.token})
	b.logger.DebugContext(ctx, "stream released", slog.String("reason", why))
}
