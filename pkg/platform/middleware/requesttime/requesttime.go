// Package requesttime pins a single "now" per request so that event
// timestamps, folio years and audit timestamps of one request agree.
package requesttime

import (
	"net/http"
	"time"

	"amlcore/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
