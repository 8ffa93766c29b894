package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/redis/go-redis/v9"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

// RedisProvider implements Database on top of Redis. Values are plain
// string keys, changes are announced with PUBLISH on a channel named after
// the key and history is kept in sorted sets scored by unix microseconds.
type RedisProvider struct {
	client *redis.Client
	url    string
	prefix string
}

// configuredRedis sets up the Redis provider.
func configuredRedis() *RedisProvider {
	url := lflag.String("redis-url", "redis://localhost:6379/0", "Redis URL including password and database number")
	prefix := lflag.String("redis-prefix", "solaris:", "Prefix for every Redis key")

	r := &RedisProvider{}

	lflag.Do(func() {
		r.url = *url
		r.prefix = *prefix
	})

	return r
}

// Init connects to Redis and verifies the connection.
func (r *RedisProvider) Init(ctx context.Context) error {
	opts, err := redis.ParseURL(r.url)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	r.client = redis.NewClient(opts)
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis (addr=%s): %w", opts.Addr, err)
	}
	return nil
}

// Close closes the Redis connection pool.
func (r *RedisProvider) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisProvider) key(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return r.prefix + path, nil
}

func (r *RedisProvider) Get(ctx context.Context, path string, dst any) error {
	key, err := r.key(path)
	if err != nil {
		return err
	}
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

// Set writes the key and publishes the new value in one transaction.
func (r *RedisProvider) Set(ctx context.Context, path string, value any) error {
	key, err := r.key(path)
	if err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, b, 0)
		pipe.Publish(ctx, key, b)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Watch subscribes before reading the current value so no change between
// the two is lost.
func (r *RedisProvider) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	key, err := r.key(path)
	if err != nil {
		return nil, err
	}
	sub := r.client.Subscribe(ctx, key)
	// wait for the subscription confirmation
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	current := Snapshot{Path: path}
	b, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		current.Value = b
	case !errors.Is(err, redis.Nil):
		sub.Close()
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}

	ch := make(chan Snapshot)
	go func() {
		defer close(ch)
		defer sub.Close()

		send := func(s Snapshot) bool {
			select {
			case ch <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(current) {
			return
		}
		msgs := sub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if !send(Snapshot{Path: path, Value: json.RawMessage(msg.Payload)}) {
					return
				}
			case <-ctx.Done():
				log.Ctx(ctx).DebugContext(ctx, "redis watch stopped", slog.String("path", path))
				return
			}
		}
	}()
	return ch, nil
}

func (r *RedisProvider) insertHistory(ctx context.Context, name string, ts time.Time, value any) error {
	if ts.IsZero() {
		return fmt.Errorf("%s record missing timestamp", name)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", name, err)
	}
	key := r.prefix + name
	score := strconv.FormatInt(ts.UnixMicro(), 10)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// a record with the same timestamp replaces the old one
		pipe.ZRemRangeByScore(ctx, key, score, score)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts.UnixMicro()), Member: string(b)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s record: %w", name, err)
	}
	return nil
}

func (r *RedisProvider) getHistory(ctx context.Context, name string, start, end time.Time) ([]string, error) {
	members, err := r.client.ZRangeByScore(ctx, r.prefix+name, &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMicro(), 10),
		Max: "(" + strconv.FormatInt(end.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	return members, nil
}

func (r *RedisProvider) InsertTelemetry(ctx context.Context, sample types.Telemetry) error {
	return r.insertHistory(ctx, telemetryCollection, sample.Timestamp, sample)
}

func (r *RedisProvider) GetTelemetryHistory(ctx context.Context, start, end time.Time) ([]types.Telemetry, error) {
	members, err := r.getHistory(ctx, telemetryCollection, start, end)
	if err != nil {
		return nil, err
	}
	samples := make([]types.Telemetry, 0, len(members))
	for _, m := range members {
		var s types.Telemetry
		if err := json.Unmarshal([]byte(m), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal telemetry: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (r *RedisProvider) GetLatestTelemetry(ctx context.Context) (*types.Telemetry, error) {
	members, err := r.client.ZRevRange(ctx, r.prefix+telemetryCollection, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get latest telemetry: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	var s types.Telemetry
	if err := json.Unmarshal([]byte(members[0]), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal telemetry: %w", err)
	}
	return &s, nil
}

func (r *RedisProvider) InsertDecision(ctx context.Context, record types.DecisionRecord) error {
	return r.insertHistory(ctx, decisionCollection, record.Timestamp, record)
}

func (r *RedisProvider) GetDecisionHistory(ctx context.Context, start, end time.Time) ([]types.DecisionRecord, error) {
	members, err := r.getHistory(ctx, decisionCollection, start, end)
	if err != nil {
		return nil, err
	}
	records := make([]types.DecisionRecord, 0, len(members))
	for _, m := range members {
		var d types.DecisionRecord
		if err := json.Unmarshal([]byte(m), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
		}
		records = append(records, d)
	}
	return records, nil
}
