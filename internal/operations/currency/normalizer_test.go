package currency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"amlcore/internal/operations/models"
	dErrors "amlcore/pkg/domain-errors"
)

type stubSupplier struct {
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (s *stubSupplier) Rate(_ context.Context, code string) (decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	r, ok := s.rates[code]
	if !ok {
		return decimal.Zero, ErrRateUnavailable
	}
	return r, nil
}

type NormalizerSuite struct {
	suite.Suite
	supplier    *stubSupplier
	cache       *MemoryCache
	now         time.Time
	provenances []models.RateProvenance
	normalizer  *Normalizer
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerSuite))
}

func (s *NormalizerSuite) SetupTest() {
	s.supplier = &stubSupplier{rates: map[string]decimal.Decimal{"MXN": decimal.RequireFromString("20")}}
	s.cache = NewMemoryCache(48 * time.Hour)
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.provenances = nil

	fallback, err := ParseFallbackRates("MXN=17.5,EUR=0.92")
	s.Require().NoError(err)
	s.normalizer, err = NewNormalizer("USD", fallback,
		WithSupplier(s.supplier),
		WithCache(s.cache),
		WithStaleness(24*time.Hour),
		WithClock(func() time.Time { return s.now }),
		WithProvenanceHook(func(p models.RateProvenance) { s.provenances = append(s.provenances, p) }),
	)
	s.Require().NoError(err)
}

// =============================================================================
// Normalize
// =============================================================================

func (s *NormalizerSuite) TestReportingCurrencyIsIdentity() {
	amount := decimal.RequireFromString("1234.56")

	n, err := s.normalizer.Normalize(context.Background(), amount, "USD")

	s.Require().NoError(err)
	s.True(amount.Equal(n.Amount))
	s.True(n.Rate.Equal(decimal.NewFromInt(1)))
	s.Equal(models.RateProvenanceIdentity, n.Provenance)
	s.Zero(s.supplier.calls, "no lookup for the reporting currency")
}

func (s *NormalizerSuite) TestSupplierRateDividesAmount() {
	n, err := s.normalizer.Normalize(context.Background(), decimal.NewFromInt(350000), "MXN")

	s.Require().NoError(err)
	s.Equal("17500", n.Amount.String())
	s.Equal(models.RateProvenanceSupplier, n.Provenance)
}

func (s *NormalizerSuite) TestQuotientIsTruncatedNotRounded() {
	s.supplier.rates["MXN"] = decimal.RequireFromString("17.5")

	n, err := s.normalizer.Normalize(context.Background(), decimal.RequireFromString("306249.93"), "MXN")

	s.Require().NoError(err)
	s.Equal("17499.996", n.Amount.String())
	s.True(n.Amount.LessThan(decimal.NewFromInt(17500)))

	third := Quotient(decimal.NewFromInt(1), decimal.NewFromInt(3))
	s.Equal("0.33333333", third.String())
	s.Equal("0.66666666", Quotient(decimal.NewFromInt(2), decimal.NewFromInt(3)).String())
}

func (s *NormalizerSuite) TestFreshCacheAvoidsSupplier() {
	ctx := context.Background()
	_, err := s.normalizer.Normalize(ctx, decimal.NewFromInt(100), "MXN")
	s.Require().NoError(err)

	s.now = s.now.Add(23 * time.Hour)
	n, err := s.normalizer.Normalize(ctx, decimal.NewFromInt(100), "MXN")

	s.Require().NoError(err)
	s.Equal(models.RateProvenanceCache, n.Provenance)
	s.Equal(1, s.supplier.calls)
}

func (s *NormalizerSuite) TestStaleCacheIsRefreshed() {
	ctx := context.Background()
	_, err := s.normalizer.Normalize(ctx, decimal.NewFromInt(100), "MXN")
	s.Require().NoError(err)

	s.now = s.now.Add(24 * time.Hour)
	n, err := s.normalizer.Normalize(ctx, decimal.NewFromInt(100), "MXN")

	s.Require().NoError(err)
	s.Equal(models.RateProvenanceSupplier, n.Provenance)
	s.Equal(2, s.supplier.calls)
}

func (s *NormalizerSuite) TestUnreachableSupplierUsesFallback() {
	s.supplier.err = errors.New("dial tcp: connection refused")

	n, err := s.normalizer.Normalize(context.Background(), decimal.NewFromInt(100), "MXN")

	s.Require().NoError(err)
	s.Equal(models.RateProvenanceFallback, n.Provenance)
	s.True(n.Rate.Equal(decimal.RequireFromString("17.5")))
	s.Equal("5.71", n.Amount.StringFixed(2))
	s.Equal([]models.RateProvenance{models.RateProvenanceFallback}, s.provenances)
}

func (s *NormalizerSuite) TestMissingQuoteUsesFallback() {
	n, err := s.normalizer.Normalize(context.Background(), decimal.NewFromInt(92), "EUR")

	s.Require().NoError(err)
	s.Equal(models.RateProvenanceFallback, n.Provenance)
	s.Equal("100", n.Amount.String())
}

func (s *NormalizerSuite) TestUnsupportedCurrencyIsValidationError() {
	_, err := s.normalizer.Normalize(context.Background(), decimal.NewFromInt(1), "JPY")

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.False(s.normalizer.Supports("JPY"))
	s.Equal([]string{"EUR", "MXN", "USD"}, s.normalizer.SupportedCodes())
}

// =============================================================================
// Fallback configuration
// =============================================================================

func (s *NormalizerSuite) TestParseFallbackRates() {
	rates, err := ParseFallbackRates(" mxn = 17.5 , cad=1.36,")
	s.Require().NoError(err)
	s.Len(rates, 2)
	s.True(rates["MXN"].Equal(decimal.RequireFromString("17.5")))

	for _, bad := range []string{"MXN", "MXN=0", "MXN=-1", "MX=17", "MXN=abc"} {
		_, err := ParseFallbackRates(bad)
		s.Error(err, bad)
	}
}
