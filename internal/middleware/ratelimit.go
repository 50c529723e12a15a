package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterStaleAfter    = 10 * time.Minute
)

// visitor pairs a client's token bucket with its last activity time so idle
// buckets can be swept.
type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimit enforces a per-client token bucket: rps tokens per second with
// the given burst ceiling. Clients are keyed by RemoteAddr host. Accepted
// requests carry X-RateLimit-* headers; rejected ones get 429 with a
// Retry-After hint.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)

	// Sweep idle visitors so the map does not grow without bound.
	go func() {
		for {
			time.Sleep(limiterSweepInterval)
			mu.Lock()
			for host, v := range visitors {
				if time.Since(v.lastSeen) > limiterStaleAfter {
					delete(visitors, host)
				}
			}
			mu.Unlock()
		}
	}()

	lookup := func(host string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		v, ok := visitors[host]
		if !ok {
			v = &visitor{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
			visitors[host] = v
		}
		v.lastSeen = time.Now()
		return v.bucket
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := lookup(clientHost(r))

			res := bucket.Reserve()
			if !res.OK() {
				rejectRateLimited(w, 0)
				return
			}
			if delay := res.Delay(); delay > 0 {
				// Granting now would exceed the rate; hand the token back.
				res.Cancel()
				rejectRateLimited(w, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(bucket.Tokens())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// clientHost keys clients by RemoteAddr only. X-Forwarded-For is spoofable
// and is deliberately not consulted.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rejectRateLimited(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}
