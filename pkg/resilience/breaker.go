package resilience

import (
	"sync"
	"time"
)

// breaker is a consecutive-failure circuit breaker. After failureThreshold
// failures it rejects calls until resetTimeout has passed since the last
// failure; the first call after that acts as a half-open probe.
type breaker struct {
	mu sync.RWMutex

	failureThreshold int
	resetTimeout     time.Duration

	failures    int
	lastFailure time.Time
	isOpen      bool
}

func newBreaker(failureThreshold int, resetTimeout time.Duration) *breaker {
	return &breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

func (b *breaker) canExecute() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return !b.isOpen || time.Since(b.lastFailure) > b.resetTimeout
}

func (b *breaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.isOpen = false
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.failureThreshold {
		b.isOpen = true
	}
}
