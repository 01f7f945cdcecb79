package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrRateUnavailable means the supplier answered without a usable rate.
var ErrRateUnavailable = errors.New("rate unavailable")

// HTTPSupplier reads the latest rate table of the reporting currency from an
// open.er-api.com style endpoint: GET {baseURL}/{BASE} returning
// {"result":"success","base_code":"USD","rates":{"MXN":17.5}}.
type HTTPSupplier struct {
	baseURL   string
	reporting string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
}

// SupplierOption configures the HTTPSupplier.
type SupplierOption func(*HTTPSupplier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) SupplierOption {
	return func(s *HTTPSupplier) { s.client = c }
}

// WithRateLimit bounds outbound requests per second.
func WithRateLimit(rps float64, burst int) SupplierOption {
	return func(s *HTTPSupplier) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithBreakerSettings overrides the circuit breaker trip policy.
func WithBreakerSettings(consecutiveFailures uint32, openFor time.Duration) SupplierOption {
	return func(s *HTTPSupplier) {
		s.breaker = newBreaker(consecutiveFailures, openFor)
	}
}

// NewHTTPSupplier creates a supplier for reporting-currency quotes.
func NewHTTPSupplier(baseURL, reporting string, opts ...SupplierOption) *HTTPSupplier {
	s := &HTTPSupplier{
		baseURL:   strings.TrimRight(baseURL, "/"),
		reporting: reporting,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
		breaker:   newBreaker(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newBreaker(consecutiveFailures uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rate-supplier",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	})
}

type latestResponse struct {
	Result   string             `json:"result"`
	BaseCode string             `json:"base_code"`
	Rates    map[string]float64 `json:"rates"`
}

// Rate returns the units of code per one unit of the reporting currency.
func (s *HTTPSupplier) Rate(ctx context.Context, code string) (decimal.Decimal, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate supplier throttled: %w", err)
	}
	out, err := s.breaker.Execute(func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate supplier: %w", err)
	}
	rates := out.(map[string]float64)
	value, ok := rates[code]
	if !ok || value <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrRateUnavailable, code)
	}
	return decimal.NewFromFloat(value), nil
}

func (s *HTTPSupplier) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+s.reporting, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("%w: supplier result %q", ErrRateUnavailable, body.Result)
	}
	if body.BaseCode != "" && body.BaseCode != s.reporting {
		return nil, fmt.Errorf("%w: supplier quoted base %s", ErrRateUnavailable, body.BaseCode)
	}
	return body.Rates, nil
}

// State reports the circuit breaker state for health output.
func (s *HTTPSupplier) State() string {
	return s.breaker.State().String()
}
