package currency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()
	fetched := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	_, found, err := c.Get(ctx, "MXN")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "MXN", Rate{Value: decimal.RequireFromString("17.3"), FetchedAt: fetched}))
	got, found, err := c.Get(ctx, "MXN")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "17.3", got.Value.String())
	assert.Equal(t, fetched, got.FetchedAt)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache(client, "USD", 48*time.Hour)
	ctx := context.Background()
	fetched := time.Date(2026, 4, 1, 9, 0, 0, 123000000, time.UTC)

	t.Run("miss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "EUR")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("round trip with expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "MXN", Rate{Value: decimal.RequireFromString("17.45"), FetchedAt: fetched}))

		got, found, err := c.Get(ctx, "MXN")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "17.45", got.Value.String())
		assert.True(t, fetched.Equal(got.FetchedAt))
		assert.Equal(t, 48*time.Hour, mr.TTL("amlcore:rates:USD:MXN"))
	})

	t.Run("entries vanish after retention", func(t *testing.T) {
		mr.FastForward(49 * time.Hour)
		_, found, err := c.Get(ctx, "MXN")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("corrupt entry is an error", func(t *testing.T) {
		mr.HSet("amlcore:rates:USD:CAD", "rate", "abc", "fetched_at", "x")
		_, _, err := c.Get(ctx, "CAD")
		assert.Error(t, err)
	})
}

func TestNormalizerOverRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	supplier := &stubSupplier{rates: map[string]decimal.Decimal{"MXN": decimal.RequireFromString("20")}}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	n, err := NewNormalizer("USD", map[string]decimal.Decimal{"MXN": decimal.RequireFromString("17.5")},
		WithSupplier(supplier),
		WithCache(NewRedisCache(client, "USD", 48*time.Hour)),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	_, err = n.Normalize(context.Background(), decimal.NewFromInt(100), "MXN")
	require.NoError(t, err)
	second, err := n.Normalize(context.Background(), decimal.NewFromInt(100), "MXN")
	require.NoError(t, err)

	assert.Equal(t, "cache", string(second.Provenance))
	assert.Equal(t, 1, supplier.calls)
}
