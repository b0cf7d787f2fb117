package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestAllowFixedWindow(t *testing.T) {
	s := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewWithClient(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := repo.Allow(ctx, "mail:a@x.com", 3, time.Hour)
		require.NoError(t, err)
		require.True(t, allowed, "hit %d", i+1)
	}

	allowed, retryAfter, err := repo.Allow(ctx, "mail:a@x.com", 3, time.Hour)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Greater(t, retryAfter, time.Duration(0))

	other, _, err := repo.Allow(ctx, "mail:b@x.com", 3, time.Hour)
	require.NoError(t, err)
	require.True(t, other)

	s.FastForward(time.Hour + time.Second)

	allowed, _, err = repo.Allow(ctx, "mail:a@x.com", 3, time.Hour)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestAllowRejectsZeroWindow(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, _, err := NewWithClient(client).Allow(context.Background(), "k", 1, 0)
	require.Error(t, err)
}
