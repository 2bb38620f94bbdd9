package telemetry

import (
	"net/http"
	"strconv"
	"time"
)

// Metrics middleware records RED metrics for every request.
func (t *Telemetry) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		t.IncrementHTTPInFlight(ctx)
		defer t.DecrementHTTPInFlight(ctx)

		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		t.RecordHTTPRequest(ctx, r.Method, r.URL.Path, strconv.Itoa(wrapped.status), time.Since(start))
	})
}
