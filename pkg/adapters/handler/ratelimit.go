package handler

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdle   = 5 * time.Minute
	sweepInterval = time.Minute
)

type ipLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter is a token bucket per client IP. Idle buckets are evicted.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	retryAfter string
	proxies    proxyList

	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	nextSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per IP with a burst of half that.
// Forwarding headers are only honoured from proxies.
func NewRateLimiter(perMinute int, proxies []netip.Prefix) *RateLimiter {
	perMinute = max(perMinute, 1)
	return &RateLimiter{
		limit:      rate.Every(time.Minute / time.Duration(perMinute)),
		burst:      max(perMinute/2, 1),
		retryAfter: strconv.Itoa((60 + perMinute - 1) / perMinute),
		proxies:    proxies,
		limiters:   make(map[string]*ipLimiter),
		now:        time.Now,
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(rl.proxies.clientIP(r)) {
			w.Header().Set("Retry-After", rl.retryAfter)
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.After(rl.nextSweep) {
		rl.sweepLocked(now)
		rl.nextSweep = now.Add(sweepInterval)
	}

	l, ok := rl.limiters[key]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = l
	}
	l.expires = now.Add(limiterIdle)
	return l.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, l := range rl.limiters {
		if now.After(l.expires) {
			delete(rl.limiters, k)
		}
	}
}

// proxyList holds the peers whose forwarding headers are believed.
type proxyList []netip.Prefix

func (p proxyList) trusts(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the remote address unless the peer is a trusted proxy. Then
// X-Forwarded-For is walked from the right, skipping trusted hops, with
// X-Real-IP as the fallback.
func (p proxyList) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !p.trusts(peer) {
		return host
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		client := host
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = hop.Unmap().String()
			if !p.trusts(hop) {
				break
			}
		}
		return client
	}
	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return host
}
