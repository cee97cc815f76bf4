package middleware

import (
	"net/http"
	"sync/atomic"
)

// Counters is the request accounting the metrics endpoint reports:
// totals, error responses and requests currently in flight.
type Counters struct {
	Requests atomic.Int64
	Errors   atomic.Int64
	InFlight atomic.Int64
}

// CountRequests tallies every request into c. Anything answered with
// status 400 or above counts as an error.
func CountRequests(c *Counters) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Requests.Add(1)
			c.InFlight.Add(1)
			defer c.InFlight.Add(-1)

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if rw.statusCode >= 400 {
				c.Errors.Add(1)
			}
		})
	}
}
