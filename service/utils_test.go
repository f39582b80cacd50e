package service

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicyPermanent(t *testing.T) {
	i := 0
	err := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Microsecond}.Do(context.Background(), func() error {
		i++
		return fmt.Errorf("permanent")
	})
	if err == nil || i != 1 {
		t.Errorf("expecting one call and an error, got %d calls (%v)", i, err)
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	expected := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for attempt, e := range expected {
		if d := p.NextDelay(attempt); d != e {
			t.Errorf("attempt %d: expected %v got %v", attempt, e, d)
		}
	}
}

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	for _, s := range []string{"b", "a", "b"} {
		ss.Push(s)
	}
	if len(ss) != 2 || !ss.Exists("a") || ss.Exists("c") {
		t.Errorf("unexpected set %v", ss)
	}
	if sl := ss.Slice(); len(sl) != 2 || sl[0] != "a" || sl[1] != "b" {
		t.Errorf("unexpected slice %v", sl)
	}
}

func TestRetryPolicyTemporary(t *testing.T) {
	i := 0
	err := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Microsecond}.Do(context.Background(), func() error {
		i++
		return MakeTemporary(fmt.Errorf("%d", i))
	})
	if i != 3 {
		t.Errorf("expecting 3 calls, got %d", i)
	}
	if err == nil || err.Error() != "3" || Temporary(err) {
		t.Errorf("expecting the last error without its marker, got %v", err)
	}
}
