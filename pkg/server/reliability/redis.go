package reliability

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix namespaces the per-source hashes.
	DefaultKeyPrefix = "quote-consensus:reliability:"

	fieldAttempts  = "attempts"
	fieldSuccesses = "successes"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps one hash per source. HINCRBY makes each update atomic, so
// concurrent writers for the same source never lose counts.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, opts.Addr, err)
	}
	return NewRedisStoreFromClient(client, opts.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(source string) string {
	return r.prefix + source
}

// Record implements Store.
func (r *RedisStore) Record(ctx context.Context, source string, ok bool) error {
	if source == "" {
		return ErrEmptySource
	}
	key := r.key(source)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldAttempts, 1)
		if ok {
			pipe.HIncrBy(ctx, key, fieldSuccesses, 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: record %s: %v", ErrUnavailable, source, err)
	}
	return nil
}

// Scores implements Store.
func (r *RedisStore) Scores(ctx context.Context, sources []string) (map[string]float64, error) {
	cmds := make([]*redis.SliceCmd, len(sources))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, source := range sources {
			cmds[i] = pipe.HMGet(ctx, r.key(source), fieldAttempts, fieldSuccesses)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scores: %v", ErrUnavailable, err)
	}

	scores := make(map[string]float64, len(sources))
	for i, source := range sources {
		stats, err := parseStats(cmds[i].Val())
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", source, err)
		}
		if stats.Attempts == 0 {
			continue
		}
		scores[source] = stats.Score()
	}
	return scores, nil
}

// Stats returns the stored history for source.
func (r *RedisStore) Stats(ctx context.Context, source string) (Stats, error) {
	vals, err := r.client.HMGet(ctx, r.key(source), fieldAttempts, fieldSuccesses).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats %s: %v", ErrUnavailable, source, err)
	}
	return parseStats(vals)
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parseStats(vals []interface{}) (Stats, error) {
	var stats Stats
	for i, dst := range []*int64{&stats.Attempts, &stats.Successes} {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		s, ok := vals[i].(string)
		if !ok {
			return Stats{}, fmt.Errorf("unexpected value type %T", vals[i])
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("parse counter %q: %w", s, err)
		}
		*dst = n
	}
	return stats, nil
}
