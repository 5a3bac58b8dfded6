package mcp

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Buckets idle past bucketStaleAfter are dropped during the sweep that
// piggybacks on allow, so the per-client map cannot grow without bound under
// churning addresses.
const (
	bucketStaleAfter = 10 * time.Minute
	bucketSweepEvery = time.Minute
)

// ipRateLimiter throttles tool traffic per client IP with a token bucket.
// Clients matched by exempt bypass it entirely, as does a zero rate or burst.
// The default exemption is loopback, so local MCP hosts are never throttled.
type ipRateLimiter struct {
	rps    float64
	burst  int
	exempt func(ip string) bool

	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

// refill credits tokens for the time elapsed since the bucket was last seen,
// capped at burst.
func (b *tokenBucket) refill(now time.Time, rps float64, burst int) {
	if elapsed := now.Sub(b.seen).Seconds(); elapsed > 0 {
		b.tokens += elapsed * rps
		if limit := float64(burst); b.tokens > limit {
			b.tokens = limit
		}
	}
	b.seen = now
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		rps:       rps,
		burst:     burst,
		exempt:    isLoopbackClientIP,
		buckets:   make(map[string]*tokenBucket),
		lastSweep: time.Now(),
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	if l == nil || l.rps <= 0 || l.burst <= 0 {
		return true
	}
	client := canonicalClientIP(ip)
	if client == "" || (l.exempt != nil && l.exempt(client)) {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	bucket, ok := l.buckets[client]
	if !ok {
		l.buckets[client] = &tokenBucket{tokens: float64(l.burst - 1), seen: now}
		return true
	}
	bucket.refill(now, l.rps, l.burst)
	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// sweepLocked drops stale buckets at most once per bucketSweepEvery. Caller
// holds l.mu.
func (l *ipRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < bucketSweepEvery {
		return
	}
	l.lastSweep = now
	for ip, bucket := range l.buckets {
		if now.Sub(bucket.seen) > bucketStaleAfter {
			delete(l.buckets, ip)
		}
	}
}

// realIP picks the client address a bucket is keyed on: the first entry of
// X-Forwarded-For when a proxy set one, otherwise the connection's remote
// address without its port.
func realIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// canonicalClientIP reduces the many spellings of one address (port suffix,
// IPv6 brackets, zone, mixed case hex) to a single bucket key.
func canonicalClientIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	if strings.EqualFold(ip, "localhost") {
		return "localhost"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ip = strings.Trim(ip, "[]")
	if zone := strings.Index(ip, "%"); zone >= 0 {
		ip = ip[:zone]
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return strings.ToLower(ip)
}

func isLoopbackClientIP(ip string) bool {
	if strings.EqualFold(strings.TrimSpace(ip), "localhost") {
		return true
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	return parsed != nil && parsed.IsLoopback()
}
