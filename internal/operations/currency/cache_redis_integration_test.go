//go:build integration

package currency

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amlcore/internal/operations/models"
	"amlcore/pkg/testutil/containers"
)

type supplierFunc func(ctx context.Context, code string) (decimal.Decimal, error)

func (f supplierFunc) Rate(ctx context.Context, code string) (decimal.Decimal, error) { return f(ctx, code) }

func TestRedisCacheSharesRatesBetweenNormalizers(t *testing.T) {
	rc := containers.GetManager().Redis(t)
	ctx := context.Background()
	require.NoError(t, rc.Flush(ctx))

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	fallback := map[string]decimal.Decimal{"MXN": decimal.RequireFromString("17.5")}
	cache := NewRedisCache(rc.Client, "USD", 48*time.Hour)

	warm, err := NewNormalizer("USD", fallback,
		WithSupplier(supplierFunc(func(context.Context, string) (decimal.Decimal, error) {
			return decimal.RequireFromString("18.0"), nil
		})),
		WithCache(cache),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	first, err := warm.Normalize(ctx, decimal.RequireFromString("1800"), "MXN")
	require.NoError(t, err)
	assert.Equal(t, models.RateProvenanceSupplier, first.Provenance)

	// A second replica with no supplier reads the shared quote.
	cold, err := NewNormalizer("USD", fallback,
		WithCache(NewRedisCache(rc.Client, "USD", 48*time.Hour)),
		WithClock(func() time.Time { return now.Add(time.Hour) }),
	)
	require.NoError(t, err)
	second, err := cold.Normalize(ctx, decimal.RequireFromString("1800"), "MXN")
	require.NoError(t, err)
	assert.Equal(t, models.RateProvenanceCache, second.Provenance)
	assert.Equal(t, "100", second.Amount.String())

	ttl, err := rc.Client.TTL(ctx, "amlcore:rates:USD:MXN").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 47*time.Hour)
}
