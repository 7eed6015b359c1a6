package connection

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Remote servers tolerate a handful of catalogue requests per second; polling
// cycles page through large libraries, so requests are smoothed per server.
const (
	defaultRate  = rate.Limit(4)
	defaultBurst = 2
)

// LimiterMap holds one rate.Limiter per connection, created on first use.
type LimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiterMap creates an empty limiter map.
func NewLimiterMap() *LimiterMap {
	return &LimiterMap{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until the limiter for the given connection allows a request,
// or the context is canceled.
func (m *LimiterMap) Wait(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	limiter, ok := m.limiters[connectionID]
	if !ok {
		limiter = rate.NewLimiter(defaultRate, defaultBurst)
		m.limiters[connectionID] = limiter
	}
	m.mu.Unlock()
	return limiter.Wait(ctx)
}

// Forget drops the limiter for a deleted connection.
func (m *LimiterMap) Forget(connectionID string) {
	m.mu.Lock()
	delete(m.limiters, connectionID)
	m.mu.Unlock()
}
