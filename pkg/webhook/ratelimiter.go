package webhook

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter caps deliveries per sender identity over a sliding
// one-minute window.
type RateLimiter struct {
	mu       sync.Mutex
	events   map[string][]time.Time
	limit    int
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter allowing up to limit deliveries
// per identity per minute.
func NewRateLimiter(limit int) *RateLimiter {
	rl := &RateLimiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		stop:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether another delivery from the identity fits the
// window, recording it if so.
func (rl *RateLimiter) Allow(identity string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := pruneOld(rl.events[identity], now)

	if len(recent) >= rl.limit {
		rl.events[identity] = recent
		return false
	}

	rl.events[identity] = append(recent, now)
	return true
}

// RetryAfter returns how long until the identity's window frees a slot.
func (rl *RateLimiter) RetryAfter(identity string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := pruneOld(rl.events[identity], time.Now())
	if len(recent) < rl.limit {
		return 0
	}

	wait := rateWindow - time.Since(recent[0])
	if wait < 0 {
		return 0
	}
	return wait
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for identity, events := range rl.events {
		recent := pruneOld(events, now)
		if len(recent) == 0 {
			delete(rl.events, identity)
		} else {
			rl.events[identity] = recent
		}
	}
}

func pruneOld(events []time.Time, now time.Time) []time.Time {
	recent := events[:0]
	for _, at := range events {
		if now.Sub(at) < rateWindow {
			recent = append(recent, at)
		}
	}
	return recent
}
