package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// Kind names a task state transition.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindClaimed   Kind = "claimed"
	KindLostRace  Kind = "lost_race"
	KindFinished  Kind = "finished"
	KindFailed    Kind = "failed"
)

// Event is one observed transition of a task record.
type Event struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	Task       string `json:"task"`
	Worker     string `json:"worker,omitempty"`
	Path       string `json:"path,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	At         int64  `json:"at"`
}

// Publisher delivers events somewhere outside the queue tree.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// StreamKey returns the Redis stream key for a queue name.
func StreamKey(queue string) string { return "stq:{" + queue + "}:events" }

// field is the stream entry field holding the encoded event.
const field = "event"

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	stream  string
	maxLen  int64
	retries uint64
	backoff time.Duration
	enc     Encoder
}

// NewRedisPublisher creates a publisher for the given stream. maxLen caps the
// stream approximately; zero keeps everything.
func NewRedisPublisher(rdb redis.UniversalClient, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		stream:  stream,
		maxLen:  maxLen,
		retries: 3,
		backoff: 50 * time.Millisecond,
		enc:     &JSONEncoder{},
	}
}

// Stream returns the stream key written by the publisher.
func (p *RedisPublisher) Stream() string { return p.stream }

// Publish stamps ev with an ID and time when missing and appends it to the stream,
// retrying transient failures with exponential backoff.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	raw, err := p.enc.Encode(ev)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{field: raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	b := retry.WithMaxRetries(p.retries, retry.NewExponential(p.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := p.rdb.XAdd(ctx, args).Err()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// Read returns up to count events from the start of stream; count <= 0 reads all.
func Read(ctx context.Context, rdb redis.UniversalClient, stream string, count int64) ([]Event, error) {
	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = rdb.XRangeN(ctx, stream, "-", "+", count).Result()
	} else {
		msgs, err = rdb.XRange(ctx, stream, "-", "+").Result()
	}
	if err != nil {
		return nil, err
	}
	enc := &JSONEncoder{}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		v, ok := m.Values[field]
		if !ok {
			continue
		}
		var raw []byte
		switch s := v.(type) {
		case string:
			raw = []byte(s)
		case []byte:
			raw = s
		default:
			return nil, fmt.Errorf("event %s: unexpected value type %T", m.ID, v)
		}
		var ev Event
		if err := enc.Decode(raw, &ev); err != nil {
			return nil, fmt.Errorf("event %s: %w", m.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
