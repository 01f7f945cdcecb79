package currency

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"amlcore/internal/operations/models"
	dErrors "amlcore/pkg/domain-errors"
)

const (
	DefaultStaleness       = 24 * time.Hour
	defaultSupplierTimeout = 5 * time.Second

	// ReportingScale is the number of decimal places a normalized amount keeps.
	ReportingScale int32 = 8
)

// Normalizer is the single place that knows the reporting currency, the
// fallback rates and how fresh a cached rate must be.
type Normalizer struct {
	reporting       string
	fallback        map[string]decimal.Decimal
	supplier        Supplier
	cache           Cache
	staleness       time.Duration
	supplierTimeout time.Duration
	clock           Clock
	logger          *slog.Logger
	onProvenance    func(models.RateProvenance)
}

// Option configures the Normalizer.
type Option func(*Normalizer)

func WithSupplier(s Supplier) Option {
	return func(n *Normalizer) { n.supplier = s }
}

func WithCache(c Cache) Option {
	return func(n *Normalizer) { n.cache = c }
}

func WithStaleness(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.staleness = d
		}
	}
}

func WithSupplierTimeout(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.supplierTimeout = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(n *Normalizer) { n.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// WithProvenanceHook observes the provenance of every normalization.
func WithProvenanceHook(fn func(models.RateProvenance)) Option {
	return func(n *Normalizer) { n.onProvenance = fn }
}

// NewNormalizer creates a Normalizer for reporting with the given fallback
// rates. Every supported currency must have a fallback.
func NewNormalizer(reporting string, fallback map[string]decimal.Decimal, opts ...Option) (*Normalizer, error) {
	if !validCode(reporting) {
		return nil, dErrors.New(dErrors.CodeValidation, "reporting currency must be a 3-letter code")
	}
	n := &Normalizer{
		reporting:       reporting,
		fallback:        map[string]decimal.Decimal{},
		staleness:       DefaultStaleness,
		supplierTimeout: defaultSupplierTimeout,
		clock:           time.Now,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for code, rate := range fallback {
		if !rate.IsPositive() {
			return nil, dErrors.New(dErrors.CodeValidation, "fallback rate for "+code+" must be positive")
		}
		n.fallback[code] = rate
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// ReportingCurrency returns the currency thresholds are evaluated in.
func (n *Normalizer) ReportingCurrency() string {
	return n.reporting
}

// Supports reports whether code can be normalized.
func (n *Normalizer) Supports(code string) bool {
	if code == n.reporting {
		return true
	}
	_, ok := n.fallback[code]
	return ok
}

// SupportedCodes lists every accepted currency code.
func (n *Normalizer) SupportedCodes() []string {
	return SupportedCodes(n.reporting, n.fallback)
}

// Normalize converts amount in code into the reporting currency. A failing
// supplier never fails the call: the fallback rate is used and reported as
// such.
func (n *Normalizer) Normalize(ctx context.Context, amount decimal.Decimal, code string) (models.Normalization, error) {
	if code == n.reporting {
		return n.done(models.Normalization{
			Amount:     amount,
			Rate:       decimal.NewFromInt(1),
			Provenance: models.RateProvenanceIdentity,
		}), nil
	}
	fallback, ok := n.fallback[code]
	if !ok {
		return models.Normalization{}, errUnsupported(code)
	}

	rate, provenance := n.resolve(ctx, code)
	if provenance == models.RateProvenanceFallback {
		rate = fallback
	}
	return n.done(models.Normalization{
		Amount:     Quotient(amount, rate),
		Rate:       rate,
		Provenance: provenance,
	}), nil
}

// Quotient divides amount by rate, truncated toward zero at ReportingScale.
// The result never exceeds the exact quotient, so a threshold comparison
// on it cannot be tipped over by rounding.
func Quotient(amount, rate decimal.Decimal) decimal.Decimal {
	q, _ := amount.QuoRem(rate, ReportingScale)
	return q
}

// resolve returns a fresh cached or supplied rate, or signals fallback.
func (n *Normalizer) resolve(ctx context.Context, code string) (decimal.Decimal, models.RateProvenance) {
	now := n.clock()

	if n.cache != nil {
		cached, found, err := n.cache.Get(ctx, code)
		if err != nil {
			n.logger.WarnContext(ctx, "rate cache read failed", "currency", code, "error", err)
		}
		if found && cached.Value.IsPositive() && now.Sub(cached.FetchedAt) < n.staleness {
			return cached.Value, models.RateProvenanceCache
		}
	}

	if n.supplier == nil {
		return decimal.Zero, models.RateProvenanceFallback
	}

	sctx, cancel := context.WithTimeout(ctx, n.supplierTimeout)
	defer cancel()
	rate, err := n.supplier.Rate(sctx, code)
	if err != nil || !rate.IsPositive() {
		n.logger.WarnContext(ctx, "rate supplier unavailable, using fallback rate",
			"currency", code,
			"rate", rate.String(),
			"error", err,
		)
		return decimal.Zero, models.RateProvenanceFallback
	}

	if n.cache != nil {
		if err := n.cache.Set(ctx, code, Rate{Value: rate, FetchedAt: now}); err != nil {
			n.logger.WarnContext(ctx, "rate cache write failed", "currency", code, "error", err)
		}
	}
	return rate, models.RateProvenanceSupplier
}

func (n *Normalizer) done(result models.Normalization) models.Normalization {
	if n.onProvenance != nil {
		n.onProvenance(result.Provenance)
	}
	return result
}
