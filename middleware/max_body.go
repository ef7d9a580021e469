package middleware

import (
	"net/http"
	"strconv"
)

// MaxBodyMiddleware caps request body reads. Checkout payloads and provider
// callbacks are all small, so the 1 MiB default leaves generous headroom;
// MAX_BODY_BYTES overrides it.
func MaxBodyMiddleware(next http.Handler) http.Handler {
	limit := int64(1 << 20)
	if v, err := strconv.ParseInt(getenv("MAX_BODY_BYTES", ""), 10, 64); err == nil && v > 0 {
		limit = v
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
