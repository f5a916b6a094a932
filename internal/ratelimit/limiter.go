package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/errs"
)

// Limiter is the bounded-concurrency-slot + bounded-FIFO-queue admission
// primitive of Two independent instances back `/run` and
// `/stream` respectively ("the two limiters are independent").
//
// Admission algorithm:
// 1. a free slot admits immediately.
// 2. otherwise, if queue depth < maxQueueSize, enqueue with a
// queueTimeoutMs timer.
// 3. otherwise, reject with server_busy.
// 4. a queued request whose timer expires is rejected with queue_timeout
// and never consumes a slot.
// 5. when a slot frees, the head of the queue is admitted (FIFO).
type Limiter struct {
	capacity int
	maxQueueSize int
	queueTimeout time.Duration

	mu sync.Mutex
	inUse int
	queue []chan struct{}
}

// NewLimiter creates a Limiter with the given concurrency capacity, queue
// bound, and per-wait queue timeout.
func NewLimiter(capacity, maxQueueSize int, queueTimeout time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{capacity: capacity, maxQueueSize: maxQueueSize, queueTimeout: queueTimeout}
}

// Acquire blocks (subject to ctx and the configured queue timeout) until a
// slot is available, or returns a *errs.CodedError (server_busy /
// queue_timeout) without blocking further. On success, the returned
// release func MUST be called exactly once to free the slot: on every
// terminal code path — success, error, timeout, client disconnect — the
// slot is released exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	l.mu.Lock()
	if l.inUse < l.capacity {
		l.inUse++
		l.mu.Unlock()
		return l.releaseFunc(), nil
	}
	if len(l.queue) >= l.maxQueueSize {
		l.mu.Unlock()
		return nil, errs.ServerBusy()
	}

	ch := make(chan struct{})
	l.queue = append(l.queue, ch)
	l.mu.Unlock()

	timer := time.NewTimer(l.queueTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		return l.releaseFunc(), nil
	case <-timer.C:
		if l.removeFromQueue(ch) {
			return nil, errs.QueueTimeout()
		}
		// Lost the race: a slot was handed to us right as the timer fired.
		<-ch
		return l.releaseFunc(), nil
	case <-ctx.Done():
		if l.removeFromQueue(ch) {
			return nil, ctx.Err()
		}
		<-ch
		return l.releaseFunc(), nil
	}
}

// removeFromQueue removes ch from the queue if still present, reporting
// whether it was found (i.e. no slot had been granted to it yet).
func (l *Limiter) removeFromQueue(ch chan struct{}) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.queue {
		if c == ch {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Limiter) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(l.release)
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	if len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		close(next) // hand the slot to the FIFO head; inUse count unchanged
		return
	}
	l.inUse--
	l.mu.Unlock()
}

// InUse reports the current number of occupied slots (diagnostics/health).
func (l *Limiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

// QueueDepth reports the current queue length (diagnostics/health).
func (l *Limiter) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
