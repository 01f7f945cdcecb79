package currency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSupplierReadsLatestTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/latest/USD", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":"success","base_code":"USD","rates":{"USD":1,"MXN":17.25,"EUR":0.91}}`)
	}))
	defer srv.Close()

	s := NewHTTPSupplier(srv.URL+"/v6/latest/", "USD")
	rate, err := s.Rate(context.Background(), "MXN")

	require.NoError(t, err)
	assert.Equal(t, "17.25", rate.String())
}

func TestHTTPSupplierErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"non-200 status", http.StatusBadGateway, `oops`, "MXN"},
		{"error result", http.StatusOK, `{"result":"error","error-type":"invalid-key"}`, "MXN"},
		{"wrong base", http.StatusOK, `{"result":"success","base_code":"EUR","rates":{"MXN":19}}`, "MXN"},
		{"missing code", http.StatusOK, `{"result":"success","base_code":"USD","rates":{"EUR":0.9}}`, "MXN"},
		{"non-positive rate", http.StatusOK, `{"result":"success","base_code":"USD","rates":{"MXN":0}}`, "MXN"},
		{"malformed body", http.StatusOK, `{"result":`, "MXN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewHTTPSupplier(srv.URL, "USD").Rate(context.Background(), tt.code)
			assert.Error(t, err)
		})
	}
}

func TestHTTPSupplierBreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPSupplier(srv.URL, "USD",
		WithBreakerSettings(2, time.Minute),
		WithRateLimit(1000, 10),
	)
	for i := 0; i < 4; i++ {
		_, err := s.Rate(context.Background(), "MXN")
		require.Error(t, err)
	}

	assert.Equal(t, int32(2), hits.Load(), "open breaker short-circuits further calls")
	assert.Equal(t, "open", s.State())
}

func TestHTTPSupplierHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPSupplier(srv.URL, "USD").Rate(ctx, "MXN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
