// Package ratelimit provides a sliding-window limiter keyed by client IP,
// used to throttle WebSocket upgrade attempts.
package ratelimit

import (
	"sync"
	"time"
)

// sweepInterval is how often Allow also evicts IPs whose whole window has
// lapsed, so the history map does not grow with every IP ever seen.
const sweepInterval = time.Minute

// IPLimiter allows up to max requests per IP within a sliding window.
type IPLimiter struct {
	mu        sync.Mutex
	history   map[string][]time.Time
	max       int
	window    time.Duration
	nextSweep time.Time
}

// NewIPLimiter creates a limiter allowing max requests per window per IP.
func NewIPLimiter(max int, window time.Duration) *IPLimiter {
	return &IPLimiter{
		history:   make(map[string][]time.Time),
		max:       max,
		window:    window,
		nextSweep: time.Now().Add(sweepInterval),
	}
}

// Allow reports whether the IP is within its limit and, if so, records
// the request.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	if now.After(l.nextSweep) {
		l.sweep(cutoff)
		l.nextSweep = now.Add(sweepInterval)
	}

	recent := prune(l.history[ip], cutoff)
	if len(recent) >= l.max {
		l.history[ip] = recent
		return false
	}

	l.history[ip] = append(recent, now)
	return true
}

// sweep evicts IPs with no request inside the window. Callers hold l.mu.
func (l *IPLimiter) sweep(cutoff time.Time) {
	for ip, times := range l.history {
		recent := prune(times, cutoff)
		if len(recent) == 0 {
			delete(l.history, ip)
			continue
		}
		l.history[ip] = recent
	}
}

// prune drops timestamps at or before cutoff, reusing the slice's backing
// array.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	recent := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}
