package service

import (
	"context"
	"math"
	"sort"
	"time"
)

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Slice returns a sorted slice from the set
func (ss StringSet) Slice() []string {
	sl := make([]string, 0, len(ss))
	for k := range ss {
		sl = append(sl, k)
	}
	sort.Strings(sl)
	return sl
}

// Exists returns true if the string already exists in the Set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

// RetryPolicy is an exponential backoff policy for transient errors
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy is used for calls to remote services
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  5,
	InitialDelay: time.Second,
	MaxDelay:     time.Minute,
	Multiplier:   2,
}

// NextDelay returns the delay before the given retry (1-indexed)
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do calls f until it succeeds, returns a non-temporary error or the attempts are exhausted.
// The last error is returned unwrapped from its temporary marker.
func (p RetryPolicy) Do(ctx context.Context, f func() error) error {
	var err error
	for attempt := 0; attempt < max(p.MaxAttempts, 1); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.NextDelay(attempt)):
			}
		}
		if err = f(); err == nil || !Temporary(err) {
			break
		}
	}
	return unwrapTemporary(err)
}

func unwrapTemporary(err error) error {
	if tmp, ok := err.(*transientError); ok {
		return tmp.err
	}
	return err
}
