// Package lim rate limits emulator clients with per-IP token buckets.
package lim

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"superpaste/metrics"
	"superpaste/svc/util"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
)

type Limiter struct {
	rpm      int
	burst    int
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	quit     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// New allows each client rpm requests per minute with bursts of up to burst.
func New(rpm, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		rpm:      rpm,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		quit:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictExpired(time.Now())
		case <-l.quit:
			return
		}
	}
}

func (l *Limiter) evictExpired(now time.Time) int {
	l.mu.Lock()
	evicted := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(l.limiters, key)
			evicted++
		}
	}
	remaining := len(l.limiters)
	l.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("rate limiter cleanup")
	}
	return evicted
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Check consumes one token for ip.
func (l *Limiter) Check(ip string) RateLimitResult {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxLimiters {
			util.Warn().Int("limiters", len(l.limiters)).Msg("rate limiter at capacity, rejecting request")
			return RateLimitResult{Limit: l.burst, Reset: now.Add(time.Minute)}
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastAccess = now
	allowed := entry.limiter.AllowN(now, 1)
	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   allowed,
		Limit:     l.burst,
		Remaining: remaining,
		Reset:     now.Add(time.Minute),
	}
}

// Middleware answers 429 once a client runs out of tokens.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := l.Check(ClientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		if !result.Allowed {
			metrics.EmuRateLimitHits.Inc()
			util.Warn().
				Str("ip", util.RedactIP(r.RemoteAddr)).
				Str("path", r.URL.Path).
				Msg("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(result.Reset).Seconds())))
			http.Error(w, `{"message":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
