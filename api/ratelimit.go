/*
ratelimit.go - Per-member rate limiting for write endpoints

PURPOSE:
  Enrollment and cancellation are the contended paths. A client hammering
  one class burns retries for everyone else, so writes are throttled per
  member with a token bucket before they reach the Coordinator.

KEYING:
  1. X-User-ID header, if present
  2. First X-Forwarded-For hop, if trusted
  3. RemoteAddr host

  Idle buckets are evicted by a janitor goroutine stopped via context.

SEE ALSO:
  - server.go: which routes are limited
*/
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserHeader carries the caller's member ID for rate limiting.
const UserHeader = "X-User-ID"

// KeyFunc extracts the bucket key from a request.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc keys by header, then (optionally) X-Forwarded-For, then remote host.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// =============================================================================
// LIMITER STORE
// =============================================================================

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiters caches one token bucket per key.
type Limiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

// NewLimiters creates a store. rps <= 0 disables limiting.
func NewLimiters(rps float64, burst int) *Limiters {
	return &Limiters{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}
}

// Allow consumes one token for key.
func (l *Limiters) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

// Len returns the number of cached buckets.
func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup drops buckets idle for longer than the TTL.
func (l *Limiters) Cleanup() {
	cutoff := time.Now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (l *Limiters) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// RateLimit rejects requests over the per-key budget with 429.
func RateLimit(l *Limiters, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = DefaultKeyFunc(UserHeader, false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFn(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(1))
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
					Error: "Too many requests",
					Code:  "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
