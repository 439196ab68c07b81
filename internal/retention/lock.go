package retention

import (
	"context"
	"sync"
	"time"
)

// Release frees a held job lock. Safe to call once; releasing after the TTL
// expired is a no-op.
type Release func(ctx context.Context) error

// JobLock serializes named jobs across scheduler instances. Acquire returns
// acquired=false, without error, when another holder owns the name.
type JobLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error)
}

// MemoryLock is the single-process JobLock. The TTL still applies so a
// leaked lock from a panicked job cannot wedge the scheduler forever.
type MemoryLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *MemoryLock) Acquire(_ context.Context, name string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expiry, ok := l.held[name]; ok && now.Before(expiry) {
		return nil, false, nil
	}
	expiry := now.Add(ttl)
	l.held[name] = expiry

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[name] == expiry {
			delete(l.held, name)
		}
		return nil
	}
	return release, true, nil
}
