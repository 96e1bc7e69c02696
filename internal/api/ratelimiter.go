package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
)

const clientIdleTTL = 10 * time.Minute

// rateLimiter decides per client whether a request may proceed.
type rateLimiter interface {
	Allow(client string) bool
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address. Buckets idle for
// longer than idleTTL are dropped on the next sweep.
type clientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	lastSweep time.Time
	clients   map[string]*clientBucket
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) *clientLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &clientLimiter{
		limit:   rate.Limit(ratePerSecond),
		burst:   burst,
		idleTTL: clientIdleTTL,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		for key, b := range l.clients {
			if now.Sub(b.lastSeen) >= l.idleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *clientLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// clientAddr identifies the caller by the host part of RemoteAddr.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(clientAddr(r)) {
			next.ServeHTTP(w, r)
			return
		}
		ServeError(w, r, apperror.Systemf(http.StatusTooManyRequests, "rate limit exceeded, please retry shortly"))
	})
}
