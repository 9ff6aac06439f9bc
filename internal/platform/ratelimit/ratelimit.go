// Package ratelimit throttles the credential endpoints. Token issuance is the
// only surface reachable without a bearer token, which makes it the natural
// target for credential stuffing.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"registrum/internal/transport/http/shared"
	dErrors "registrum/pkg/domain-errors"
)

// Result reports the limiter's decision for one request.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Store counts requests per key within a window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// slidingWindow tracks request timestamps so a burst straddling a window
// boundary cannot double the effective limit.
type slidingWindow struct {
	timestamps []time.Time
}

func (w *slidingWindow) cleanup(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept
}

// InMemoryStore is a single-replica sliding window limiter.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{windows: make(map[string]*slidingWindow)}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		w = &slidingWindow{}
		s.windows[key] = w
	}
	now := time.Now()
	w.cleanup(now, window)

	if len(w.timestamps) >= limit {
		return &Result{Allowed: false, Limit: limit, ResetAt: w.timestamps[0].Add(window)}, nil
	}
	w.timestamps = append(w.timestamps, now)
	return &Result{
		Allowed:   true,
		Remaining: limit - len(w.timestamps),
		Limit:     limit,
		ResetAt:   now.Add(window),
	}, nil
}

// Middleware applies a per-client-IP limit to every request on the router it
// is mounted on. Limiter outages fail open: losing throttling is cheaper than
// losing logins.
func Middleware(store Store, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := store.Allow(r.Context(), clientIP(r), limit, window)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := max(int(time.Until(result.ResetAt).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				shared.WriteJSON(w, http.StatusTooManyRequests, shared.ErrorResponse{
					Error:   string(dErrors.CodeRateLimited),
					Message: "too many requests, retry later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
