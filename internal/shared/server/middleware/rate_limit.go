package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/shared/server/respond"
)

// RateGroup names a class of requests that share a limit.
type RateGroup string

const (
	RateGroupDefault RateGroup = "DEFAULT"
	RateGroupPolling RateGroup = "POLLING"
)

// Buckets untouched for this long are dropped on the next sweep.
const bucketIdleTTL = 10 * time.Minute

// RateLimitRule refills Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

func (r RateLimitRule) unlimited() bool { return r.Rate <= 0 || r.Burst <= 0 }

// RateLimitConfig maps request groups to rules. Groups without a rule are
// not limited.
type RateLimitConfig struct {
	Rules    map[RateGroup]RateLimitRule
	GroupFor func(*gin.Context) RateGroup
	Limiter  *RateLimiter
}

// RateLimiter holds one bucket per client, device and group.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rateBucket
	lastSweep time.Time
	now       func() time.Time
}

type rateBucket struct {
	tokens  float64
	updated time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{buckets: make(map[string]*rateBucket), now: now}
}

// RateLimit rejects requests over their group's rule with 429 and a
// Retry-After header in whole seconds.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	return func(c *gin.Context) {
		group := RateGroupDefault
		if cfg.GroupFor != nil {
			if g := cfg.GroupFor(c); g != "" {
				group = g
			}
		}
		rule, ok := cfg.Rules[group]
		if !ok || rule.unlimited() {
			c.Next()
			return
		}

		wait := cfg.Limiter.Take(bucketKey(c, group), rule)
		if wait == 0 {
			c.Next()
			return
		}
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded", gin.H{
			"retry_after_ms": wait.Milliseconds(),
		})
	}
}

// bucketKey identifies the caller by client id and device, falling back to
// the remote address for unauthenticated routes.
func bucketKey(c *gin.Context, group RateGroup) string {
	caller := strings.TrimSpace(c.GetHeader(headerClientID))
	if caller == "" {
		caller = c.ClientIP()
	}
	return caller + "/" + c.Param("device") + "|" + string(group)
}

// Take spends one token from key's bucket. It returns zero when the request
// may proceed, otherwise the time until a token is available (at least 1ms).
func (l *RateLimiter) Take(key string, rule RateLimitRule) time.Duration {
	if l == nil || rule.unlimited() {
		return 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &rateBucket{tokens: float64(rule.Burst), updated: now}
		l.buckets[key] = b
	}
	if dt := now.Sub(b.updated); dt > 0 {
		b.tokens = math.Min(float64(rule.Burst), b.tokens+dt.Seconds()*rule.Rate)
		b.updated = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}

	wait := time.Duration(math.Ceil((1-b.tokens)/rule.Rate*1000)) * time.Millisecond
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// Len returns the number of live buckets.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep drops idle buckets at most once per bucketIdleTTL. The caller holds l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < bucketIdleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.updated) >= bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
}
