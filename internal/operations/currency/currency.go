// Package currency converts operation amounts into the reporting currency.
//
// Rates are quoted as units of the original currency per one unit of the
// reporting currency, so normalized = amount / rate.
package currency

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "amlcore/pkg/domain-errors"
)

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// Rate is a supplier quote and the moment it was fetched.
type Rate struct {
	Value     decimal.Decimal
	FetchedAt time.Time
}

// Supplier fetches the current rate of one currency against the reporting currency.
type Supplier interface {
	Rate(ctx context.Context, code string) (decimal.Decimal, error)
}

// Cache stores supplier quotes. Get returns found=false for missing entries;
// freshness is decided by the caller.
type Cache interface {
	Get(ctx context.Context, code string) (Rate, bool, error)
	Set(ctx context.Context, code string, rate Rate) error
}

// ParseFallbackRates parses "MXN=17.5,EUR=0.92" into positive rates keyed by
// upper-case code.
func ParseFallbackRates(s string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("fallback rate %q: expected CODE=RATE", pair)
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		if !validCode(code) {
			return nil, fmt.Errorf("fallback rate %q: invalid currency code", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("fallback rate %q: rate must be a positive number", pair)
		}
		out[code] = rate
	}
	return out, nil
}

func validCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// SupportedCodes lists the reporting currency and every fallback currency, sorted.
func SupportedCodes(reporting string, fallback map[string]decimal.Decimal) []string {
	codes := []string{reporting}
	for code := range fallback {
		if code != reporting {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

func errUnsupported(code string) error {
	return dErrors.New(dErrors.CodeValidation, "currency "+code+" is not supported")
}
