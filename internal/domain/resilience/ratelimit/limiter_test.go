package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func fixedClock(start time.Time) (*time.Time, func() time.Time) {
	current := start
	return &current, func() time.Time { return current }
}

func TestLimiterAllowsWithinQuota(t *testing.T) {
	l := NewLimiter(Config{Window: time.Minute, Limit: 3, MaxConcurrent: 10})

	for i := 0; i < 3; i++ {
		decision, release, err := l.Acquire("microsoft/user")
		if err != nil {
			t.Fatalf("call %d rejected: %v", i, err)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("call %d remaining = %d, want %d", i, decision.Remaining, 2-i)
		}
		release()
	}

	_, _, err := l.Acquire("microsoft/user")
	var limited *LimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected LimitedError, got %v", err)
	}
	if limited.ResetAt.IsZero() {
		t.Fatalf("denial must carry reset time")
	}
}

func TestLimiterWindowReset(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current, clock := fixedClock(start)

	l := NewLimiter(Config{Window: time.Minute, Limit: 2, MaxConcurrent: 10})
	l.now = clock

	for i := 0; i < 2; i++ {
		_, release, err := l.Acquire("id")
		if err != nil {
			t.Fatalf("call %d rejected: %v", i, err)
		}
		release()
	}
	if _, _, err := l.Acquire("id"); err == nil {
		t.Fatalf("expected denial at quota")
	}

	*current = start.Add(61 * time.Second)

	decision, release, err := l.Acquire("id")
	if err != nil {
		t.Fatalf("expected fresh window to admit: %v", err)
	}
	release()
	if decision.Remaining != 1 {
		t.Fatalf("fresh window remaining = %d, want 1", decision.Remaining)
	}
	if want := start.Add(61 * time.Second).Add(time.Minute); !decision.ResetAt.Equal(want) {
		t.Fatalf("resetAt = %s, want %s", decision.ResetAt, want)
	}
}

func TestLimiterIdentitiesAreIndependent(t *testing.T) {
	l := NewLimiter(Config{Window: time.Minute, Limit: 1, MaxConcurrent: 10})

	if _, release, err := l.Acquire("a"); err != nil {
		t.Fatalf("first identity rejected: %v", err)
	} else {
		release()
	}
	if _, _, err := l.Acquire("a"); err == nil {
		t.Fatalf("expected denial for exhausted identity")
	}
	if _, release, err := l.Acquire("b"); err != nil {
		t.Fatalf("second identity should be unaffected: %v", err)
	} else {
		release()
	}
}

func TestLimiterConcurrencyCeiling(t *testing.T) {
	l := NewLimiter(Config{Window: time.Minute, Limit: 100, MaxConcurrent: 2})

	_, release1, err := l.Acquire("id")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	_, release2, err := l.Acquire("id")
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if _, _, err := l.Acquire("id"); err == nil {
		t.Fatalf("expected concurrency denial")
	}

	release1()

	_, release3, err := l.Acquire("id")
	if err != nil {
		t.Fatalf("slot should be free after release: %v", err)
	}
	release3()
	release2()
}

func TestLimiterAdmissionNotRefunded(t *testing.T) {
	l := NewLimiter(Config{Window: time.Minute, Limit: 2, MaxConcurrent: 10})

	_, release, err := l.Acquire("id")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// Release twice: the concurrency slot frees once, the window count
	// never decrements.
	release()
	release()

	decision := l.Peek("id")
	if decision.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1 (admission is charged on attempt)", decision.Remaining)
	}
}

func TestLimiterPeekDoesNotConsume(t *testing.T) {
	l := NewLimiter(Config{Window: time.Minute, Limit: 5, MaxConcurrent: 10})

	for i := 0; i < 10; i++ {
		l.Peek("id")
	}
	decision := l.Peek("id")
	if decision.Remaining != 5 {
		t.Fatalf("peek consumed quota: remaining = %d", decision.Remaining)
	}
}
