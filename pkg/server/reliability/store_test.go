package reliability

import (
	"context"
	"fmt"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, "test:"), mr
}

func TestStats_Score(t *testing.T) {
	assert.InDelta(t, 0.5, Stats{}.Score(), 1e-9)
	assert.InDelta(t, 0.75, Stats{Attempts: 2, Successes: 2}.Score(), 1e-9)
	assert.InDelta(t, 0.25, Stats{Attempts: 2}.Score(), 1e-9)
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			require.NoError(t, s.Record(ctx, "yahoo", true))
			require.NoError(t, s.Record(ctx, "yahoo", true))
			require.NoError(t, s.Record(ctx, "stooq", false))
			assert.ErrorIs(t, s.Record(ctx, "", true), ErrEmptySource)

			scores, err := s.Scores(ctx, []string{"yahoo", "stooq", "nasdaq"})
			require.NoError(t, err)
			assert.Len(t, scores, 2, "sources without history are omitted")
			assert.InDelta(t, 0.75, scores["yahoo"], 1e-9)
			assert.InDelta(t, 1.0/3, scores["stooq"], 1e-9)
		})
	}
}

func TestStores_ConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rs, _ := newRedisStore(t)

	for _, s := range []Store{mem, rs} {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Record(ctx, fmt.Sprintf("src%d", i%2), i%5 != 0))
			}(i)
		}
		wg.Wait()
	}

	assert.Equal(t, Stats{Attempts: 25, Successes: 20}, mem.Stats("src0"))
	assert.Equal(t, Stats{Attempts: 25, Successes: 20}, mem.Stats("src1"))

	stats, err := rs.Stats(ctx, "src0")
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempts: 25, Successes: 20}, stats)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newRedisStore(t)
	require.NoError(t, s.Record(context.Background(), "yahoo", false))

	assert.True(t, mr.Exists("test:yahoo"))
	assert.Equal(t, "1", mr.HGet("test:yahoo", "attempts"))
	assert.Equal(t, "", mr.HGet("test:yahoo", "successes"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	assert.ErrorIs(t, s.Record(context.Background(), "yahoo", true), ErrUnavailable)
	_, err := s.Scores(context.Background(), []string{"yahoo"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr()})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DefaultKeyPrefix, s.prefix)
}
