//go:build property

package currency_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"amlcore/internal/operations/currency"
)

type fixedSupplier struct{ rate decimal.Decimal }

func (f fixedSupplier) Rate(context.Context, string) (decimal.Decimal, error) { return f.rate, nil }

// TestNormalizeIsIdentityOrDivision: identity for the reporting currency,
// amount/rate (to the cent) otherwise, for any positive rate.
func TestNormalizeIsIdentityOrDivision(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("normalize(amount, USD) == amount", prop.ForAll(
		func(cents int64) bool {
			n, err := currency.NewNormalizer("USD", nil)
			if err != nil {
				return false
			}
			amount := decimal.New(cents, -2)
			out, err := n.Normalize(context.Background(), amount, "USD")
			return err == nil && out.Amount.Equal(amount)
		},
		gen.Int64Range(1, 1_000_000_000),
	))

	properties.Property("normalize(amount, MXN) is amount / rate truncated at the reporting scale", prop.ForAll(
		func(cents int64, rateMillis int64) bool {
			rate := decimal.New(rateMillis, -3)
			n, err := currency.NewNormalizer("USD",
				map[string]decimal.Decimal{"MXN": decimal.NewFromInt(1)},
				currency.WithSupplier(fixedSupplier{rate: rate}),
			)
			if err != nil {
				return false
			}
			amount := decimal.New(cents, -2)
			out, err := n.Normalize(context.Background(), amount, "MXN")
			if err != nil || !out.Rate.Equal(rate) {
				return false
			}
			step := decimal.New(1, -currency.ReportingScale)
			return out.Amount.Mul(rate).LessThanOrEqual(amount) &&
				out.Amount.Add(step).Mul(rate).GreaterThan(amount)
		},
		gen.Int64Range(1, 1_000_000_000),
		gen.Int64Range(1, 100_000),
	))

	properties.TestingRun(t)
}
