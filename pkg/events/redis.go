package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/orbsec/organization-service/pkg/faults"
)

// DefaultStream is the stream organizations are published to
const DefaultStream = "organization-changes"

// RedisStreamPublisher appends events to a Redis stream with XADD
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher creates a publisher. maxLen caps the stream length
// approximately; zero leaves it unbounded.
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisClient connects to the Redis server at url
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Stream returns the stream name
func (p *RedisStreamPublisher) Stream() string {
	return p.stream
}

// Deliver appends event to the stream
func (p *RedisStreamPublisher) Deliver(ctx context.Context, event ChangeEvent) error {
	const op = "events.redis.deliver"

	payload, err := json.Marshal(event)
	if err != nil {
		return faults.Wrap(faults.Unknown, op, err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"id":             event.ID,
			"organizationId": event.OrganizationID,
			"changeType":     string(event.ChangeType),
			"payload":        string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		kind := faults.Classify(err)
		if kind == faults.Unknown {
			kind = faults.Unavailable
		}
		return faults.Wrap(kind, op, err)
	}
	return nil
}
