// Package ratelimit provides the per-identity token-bucket admission
// limiter ("Rate limiting") and the bounded-concurrency +
// FIFO-queue admission primitive ("Concurrency and queue"),
// grounded on golang.org/x/time/rate-based
// agent/rate_limiter_token_bucket.go.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketConfig configures the per-identity token bucket.
type BucketConfig struct {
	RequestsPerMinute float64
	Burst int
	// IdleTimeout expires unused per-identity buckets so long-lived
	// servers don't accumulate one limiter per caller forever.
	IdleTimeout time.Duration
}

type entry struct {
	limiter *rate.Limiter
	lastAccess time.Time
}

// Buckets is a per-identity token-bucket limiter. The server builds one
// instance and applies it to both `/run` and `/stream`; the per-endpoint
// independent limiters are the concurrency Limiters.
type Buckets struct {
	cfg BucketConfig

	mu sync.Mutex
	perKey map[string]*entry
	stop chan struct{}
	stopped bool
}

// NewBuckets creates a Buckets limiter and starts its idle-cleanup loop.
func NewBuckets(cfg BucketConfig) *Buckets {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	b := &Buckets{
		cfg: cfg,
		perKey: make(map[string]*entry),
		stop: make(chan struct{}),
	}
	go b.cleanupLoop()
	return b
}

// Allow reports whether identity may proceed right now, consuming a token
// if so.
func (b *Buckets) Allow(identity string) bool {
	return b.limiterFor(identity).Allow()
}

func (b *Buckets) limiterFor(identity string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.perKey[identity]
	if !ok {
		limit := rate.Limit(b.cfg.RequestsPerMinute / 60.0)
		e = &entry{limiter: rate.NewLimiter(limit, b.cfg.Burst)}
		b.perKey[identity] = e
	}
	e.lastAccess = time.Now()
	return e.limiter
}

func (b *Buckets) cleanupLoop() {
	ticker := time.NewTicker(b.cfg.IdleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case now := <-ticker.C:
			b.mu.Lock()
			for k, e := range b.perKey {
				if now.Sub(e.lastAccess) > b.cfg.IdleTimeout {
					delete(b.perKey, k)
				}
			}
			b.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine. Idempotent.
func (b *Buckets) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.stop)
}
