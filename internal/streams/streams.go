// Package streams wraps the Redis stream and cache fabric shared by every
// worker: consumer groups with at-least-once delivery, retry-or-dead-letter
// parking, TTL dedupe sets, JSON caches and heartbeats.
package streams

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stream names.
const (
	StreamRawEvents     = "titan:raw_events"
	StreamDecodedTrades = "titan:decoded_trades"
	StreamRiskJobs      = "titan:risk_jobs"
	StreamProfileJobs   = "titan:profile_jobs"
	StreamAlertJobs     = "titan:alert_jobs"
)

// Cache / coordination keys.
const (
	KeyRawEventDedupe  = "titan:raw_events:dedupe"
	KeyRiskJobDedupe   = "titan:risk_jobs:dedupe"
	KeyWatchSnapshot   = "titan:watch_pairs:snapshot"
	heartbeatKeyPrefix = "titan:hb:"
)

// DeadSuffix is appended to a stream name to form its dead-letter stream.
const DeadSuffix = ":dead"

// Client is a thin layer over one go-redis client.
type Client struct {
	rdb        *redis.Client
	maxRetries int
	log        zerolog.Logger
}

// New connects to Redis from a URL and verifies the connection.
func New(ctx context.Context, redisURL string, maxRetries int, logger zerolog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{rdb: rdb, maxRetries: maxRetries, log: logger}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Raw exposes the underlying client for ops queries (pending counts).
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

// Publish XADDs a flat string map to a stream.
func (c *Client) Publish(ctx context.Context, stream string, values map[string]string) error {
	args := make(map[string]any, len(values))
	for k, v := range values {
		args[k] = v
	}
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 100_000,
		Approx: true,
		Values: args,
	}).Err()
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Message is one delivered stream entry.
type Message struct {
	ID     string
	Stream string
	Values map[string]string
}

// GetString returns a field or "".
func (m *Message) GetString(key string) string {
	return m.Values[key]
}

// GetInt parses a field as an int, defaulting to 0.
func (m *Message) GetInt(key string) int {
	n, _ := strconv.Atoi(m.Values[key])
	return n
}

// ReadGroup blocks up to block for the next batch of messages for this
// consumer. A nil slice with nil error means the block timed out.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Message, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for _, s := range res {
		for _, m := range s.Messages {
			values := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				if sv, ok := v.(string); ok {
					values[k] = sv
				}
			}
			msgs = append(msgs, Message{ID: m.ID, Stream: s.Stream, Values: values})
		}
	}
	return msgs, nil
}

// Ack acknowledges one message for the group.
func (c *Client) Ack(ctx context.Context, stream, group, id string) error {
	return c.rdb.XAck(ctx, stream, group, id).Err()
}

// RetryOrDeadLetter requeues a failed message with an incremented
// retry_count, parking it on the dead-letter stream once retries are
// exhausted. The original entry is acked either way.
func (c *Client) RetryOrDeadLetter(ctx context.Context, msg Message, group string, cause error) error {
	retries := msg.GetInt("retry_count")

	values := make(map[string]string, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["retry_count"] = strconv.Itoa(retries + 1)

	target := msg.Stream
	if retries+1 >= c.maxRetries {
		target = msg.Stream + DeadSuffix
		values["error"] = cause.Error()
		c.log.Warn().Str("stream", msg.Stream).Str("id", msg.ID).
			Int("retries", retries+1).Err(cause).Msg("message moved to dead letter")
	}

	if err := c.Publish(ctx, target, values); err != nil {
		return err
	}
	return c.Ack(ctx, msg.Stream, group, msg.ID)
}

// DedupeOnce adds member to a TTL'd set, returning true when this is the
// first sighting.
func (c *Client) DedupeOnce(ctx context.Context, key, member string, ttl time.Duration) (bool, error) {
	added, err := c.rdb.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, err
	}
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return false, err
	}
	return added > 0, nil
}

// SetJSON stores a JSON-encoded value with a TTL.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetJSON loads a JSON value, returning false when the key is absent.
func (c *Client) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

// GetCachedString reads a plain string cache entry.
func (c *Client) GetCachedString(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetCachedString writes a plain string cache entry with a TTL.
func (c *Client) SetCachedString(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// PendingCount returns the consumer group's pending entry count, 0 when the
// group does not exist.
func (c *Client) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	p, err := c.rdb.XPending(ctx, stream, group).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return p.Count, nil
}
