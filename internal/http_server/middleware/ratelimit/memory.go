package ratelimit

import (
	"context"
	"sync"
	"time"

	httprate "github.com/go-chi/httprate"
)

// Memory is a fixed window limiter over httprate's in-process counters, used
// when Redis is not configured. Counts are per instance.
type Memory struct {
	mu       sync.Mutex
	counters map[time.Duration]httprate.LimitCounter
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		counters: map[time.Duration]httprate.LimitCounter{},
		now:      time.Now,
	}
}

func (l *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter, ok := l.counters[window]
	if !ok {
		counter = httprate.NewLocalLimitCounter(window)
		l.counters[window] = counter
	}

	now := l.now().UTC()
	currentWindow := now.Truncate(window)
	retryAfter := currentWindow.Add(window).Sub(now)

	count, _, err := counter.Get(key, currentWindow, currentWindow.Add(-window))
	if err != nil {
		return false, 0, err
	}

	if count >= limit {
		return false, retryAfter, nil
	}

	if err := counter.Increment(key, currentWindow); err != nil {
		return false, 0, err
	}

	return true, retryAfter, nil
}
