package simpletq

import (
	"context"
	"time"

	"github.com/UniQw/simpletq/internal/events"
	"github.com/redis/go-redis/v9"
)

// defaultPublishTimeout bounds a single publication so an unreachable
// Redis cannot stall a submitter or the scheduler.
const defaultPublishTimeout = 5 * time.Second

// Event is a task state transition published outside the queue tree.
type Event = events.Event

// Publisher delivers events. Publication failures are logged and never
// change the state of a task.
type Publisher = events.Publisher

// EventStream returns the default Redis stream key for a queue name.
func EventStream(queue string) string { return events.StreamKey(queue) }

// NewRedisPublisher appends events to a Redis stream, capped at roughly maxLen
// entries when maxLen > 0.
func NewRedisPublisher(rdb redis.UniversalClient, stream string, maxLen int64) Publisher {
	return events.NewRedisPublisher(rdb, stream, maxLen)
}

// ReadEvents returns up to count events from the start of stream; count <= 0 reads all.
func ReadEvents(ctx context.Context, rdb redis.UniversalClient, stream string, count int64) ([]Event, error) {
	return events.Read(ctx, rdb, stream, count)
}
