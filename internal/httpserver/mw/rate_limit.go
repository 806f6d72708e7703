package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/folio/internal/utils"
)

// RateLimitConfig configures a per-IP token bucket.
type RateLimitConfig struct {
	Burst             int // bucket size
	RefillPerIPPerMin int
	MaxEntries        int           // forces a sweep when this many IPs are tracked
	SweepInterval     time.Duration // defaults to 1m
	IdleTTL           time.Duration // buckets untouched this long are dropped, defaults to 15m
	TrustProxy        bool          // resolve IP from proxy headers when true

	Now      func() time.Time // defaults to time.Now
	OnReject func()           // called for every 429, may be nil
}

type bucket struct {
	tokens   float64
	refilled time.Time
	seen     time.Time
}

// decision is the outcome of one take.
type decision struct {
	allowed    bool
	remaining  int
	retryAfter int // seconds, only when !allowed
}

type limiter struct {
	cfg      RateLimitConfig
	rate     float64 // tokens per second
	capacity float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	cfg.Burst = max(cfg.Burst, 1)
	cfg.RefillPerIPPerMin = max(cfg.RefillPerIPPerMin, 1)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &limiter{
		cfg:       cfg,
		rate:      float64(cfg.RefillPerIPPerMin) / 60.0,
		capacity:  float64(cfg.Burst),
		buckets:   make(map[string]*bucket, 1024),
		lastSweep: cfg.Now(),
	}
}

// take refills the bucket of key up to now and spends one token if it can.
func (l *limiter) take(key string, now time.Time) decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	full := l.cfg.MaxEntries > 0 && len(l.buckets) >= l.cfg.MaxEntries
	if full || now.Sub(l.lastSweep) >= l.cfg.SweepInterval {
		l.sweepLocked(now)
	}

	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.capacity, refilled: now}
		l.buckets[key] = b
	}
	b.seen = now

	if elapsed := now.Sub(b.refilled).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.rate)
		b.refilled = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return decision{allowed: true, remaining: int(b.tokens)}
	}
	wait := int(math.Ceil((1 - b.tokens) / l.rate))
	return decision{retryAfter: max(wait, 1)}
}

func (l *limiter) sweepLocked(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.seen) > l.cfg.IdleTTL {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

// RateLimit rejects requests with 429 once the client IP has spent its bucket.
// Snapshot retrieval may trigger an outbound fetch, so it sits behind this.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newLimiter(cfg)
	limit := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.take(utils.ClientIP(r, l.cfg.TrustProxy), l.cfg.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			if !d.allowed {
				if l.cfg.OnReject != nil {
					l.cfg.OnReject()
				}
				h.Set("Retry-After", strconv.Itoa(d.retryAfter))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
