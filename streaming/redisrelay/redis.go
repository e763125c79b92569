package redisrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HPD-AI/HPD-Agent-Framework/internal/logctx"
	"github.com/HPD-AI/HPD-Agent-Framework/streaming"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for a Redis-backed relay. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: HPD_STREAM_KEY_PREFIX
	KeyPrefix string `env:"HPD_STREAM_KEY_PREFIX,default=hpd:stream:"`
	// Block is how long a single XREAD waits. ENV: HPD_STREAM_BLOCK
	Block time.Duration `env:"HPD_STREAM_BLOCK,default=500ms"`
	// TTL applied to a session's key once it is terminated. ENV: HPD_STREAM_TTL
	TTL time.Duration `env:"HPD_STREAM_TTL,default=10m"`
}

const (
	fieldKind = "k"
	fieldData = "d"

	kindEvent = "event"
	kindEnd   = "end"
	kindFail  = "fail"
)

// Relay carries stream notifications between processes over Redis streams,
// one stream key per session token. The producing process uses the Relay as
// its streaming.Sink; the consuming process calls Forward to replay the
// entries into its local streaming.Bridge.
type Relay struct {
	client    *redis.Client
	keyPrefix string
	block     time.Duration
	ttl       time.Duration
	logger    *slog.Logger
}

var _ streaming.Sink = (*Relay)(nil)

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger used to report dropped notifications.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(cfg Config, opts ...Option) (*Relay, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	r := &Relay{
		client:    cl,
		keyPrefix: cfg.KeyPrefix,
		block:     cfg.Block,
		ttl:       cfg.TTL,
		logger:    slog.Default(),
	}
	if r.keyPrefix == "" {
		r.keyPrefix = "hpd:stream:"
	}
	if r.block <= 0 {
		r.block = 500 * time.Millisecond
	}
	if r.ttl <= 0 {
		r.ttl = 10 * time.Minute
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewFromEnv builds a Relay using envdecode to populate Config.
func NewFromEnv(opts ...Option) (*Relay, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode relay config: %w", err)
	}
	return New(cfg, opts...)
}

// Close closes the Redis client.
func (r *Relay) Close() error { return r.client.Close() }

func (r *Relay) streamKey(token string) string { return r.keyPrefix + token }

// Publish appends one notification to the session's stream and returns the
// entry ID.
func (r *Relay) Publish(ctx context.Context, token, kind, data string) (string, error) {
	key := r.streamKey(token)
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{fieldKind: kind, fieldData: data},
	}).Result()
	if err != nil {
		return "", err
	}
	if kind != kindEvent {
		// Terminated sessions expire on their own if no consumer ever shows up.
		_ = r.client.Expire(ctx, key, r.ttl).Err()
	}
	return id, nil
}

// Push implements streaming.Sink.
func (r *Relay) Push(token, event string) { r.publishOrLog(token, kindEvent, event) }

// End implements streaming.Sink.
func (r *Relay) End(token string) { r.publishOrLog(token, kindEnd, "") }

// Fail implements streaming.Sink.
func (r *Relay) Fail(token, reason string) { r.publishOrLog(token, kindFail, reason) }

func (r *Relay) publishOrLog(token, kind, data string) {
	ctx := logctx.WithStreamData(context.Background(), &logctx.StreamData{Token: token})
	if _, err := r.Publish(ctx, token, kind, data); err != nil {
		r.logger.ErrorContext(ctx, "relay publish failed", slog.String("kind", kind), slog.String("err", err.Error()))
	}
}

// Forward reads the session's stream from the beginning and replays every
// entry into sink under the same token. It returns nil after relaying an end
// or fail entry, or ctx.Err() if ctx is done first. The session's key is
// removed once a terminal entry has been relayed.
func (r *Relay) Forward(ctx context.Context, token string, sink streaming.Sink) error {
	key := r.streamKey(token)
	start := "0"
	ctx = logctx.WithStreamData(ctx, &logctx.StreamData{Token: token})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		res, err := r.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, start}, Count: 64, Block: r.block}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if len(res) == 0 {
			continue
		}
		for _, m := range res[0].Messages {
			start = m.ID
			data := stringValue(m.Values[fieldData])
			switch stringValue(m.Values[fieldKind]) {
			case kindEvent:
				sink.Push(token, data)
			case kindEnd:
				sink.End(token)
				r.cleanup(ctx, key)
				return nil
			case kindFail:
				sink.Fail(token, data)
				r.cleanup(ctx, key)
				return nil
			default:
				r.logger.WarnContext(ctx, "relay entry with unknown kind skipped", slog.String("id", m.ID))
			}
		}
	}
}

func (r *Relay) cleanup(ctx context.Context, key string) {
	_, _ = r.client.Del(context.WithoutCancel(ctx), key).Result()
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
