package service

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source of the polling loops
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done (returns ctx.Err())
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock is the wall clock
var RealClock Clock = realClock{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ManualClock is a Clock whose Sleep advances the time immediately.
// OnSleep, if set, is called after each Sleep with the current time.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	slept   time.Duration
	OnSleep func(now time.Time)
}

// NewManualClock creates a ManualClock starting at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep implements Clock
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	now, onSleep := c.now, c.OnSleep
	c.mu.Unlock()
	if onSleep != nil {
		onSleep(now)
	}
	return nil
}

// Slept returns the total time slept
func (c *ManualClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}
