package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestAllowWithinBudget(t *testing.T) {
	l := New(10, 5*time.Minute)

	for i := 0; i < 10; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("attempt 11 should be rejected")
	}
}

func TestOriginsIndependent(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		l.Allow("10.0.0.1")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("first origin should be exhausted")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("second origin must not be affected")
	}
}

func TestNoRefillInsideWindow(t *testing.T) {
	l := New(10, time.Hour)

	for i := 0; i < 10; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	// Waiting well inside the window must not restore any budget: the
	// count over the continuous window is still 10.
	time.Sleep(300 * time.Millisecond)
	if l.Allow("10.0.0.1") {
		t.Fatal("11th attempt inside the window must be rejected")
	}
}

func TestBudgetRestoredAfterWindow(t *testing.T) {
	l := New(2, 100*time.Millisecond)

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.1")
	if l.Allow("10.0.0.1") {
		t.Fatal("third attempt inside the window should be rejected")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow("10.0.0.1") {
		t.Fatal("budget should return once prior attempts leave the window")
	}
}

func TestRejectedAttemptsSpendNoBudget(t *testing.T) {
	l := New(2, 150*time.Millisecond)

	l.Allow("10.0.0.1")
	time.Sleep(100 * time.Millisecond)
	l.Allow("10.0.0.1")
	for i := 0; i < 5; i++ {
		if l.Allow("10.0.0.1") {
			t.Fatalf("rejection %d should not have been allowed", i+1)
		}
	}
	// Once the first attempt ages out, exactly one slot opens; the
	// rejected attempts above must not have pushed that back.
	time.Sleep(70 * time.Millisecond)
	if !l.Allow("10.0.0.1") {
		t.Fatal("slot should open when the oldest attempt leaves the window")
	}
}

func TestIdleOriginsPruned(t *testing.T) {
	l := New(5, 50*time.Millisecond)

	for i := 0; i < 32; i++ {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	if l.Len() != 32 {
		t.Fatalf("expected 32 tracked origins, got %d", l.Len())
	}

	time.Sleep(120 * time.Millisecond)
	// The next call runs the periodic prune; only the caller survives.
	l.Allow("10.0.1.1")
	if got := l.Len(); got != 1 {
		t.Fatalf("expected stale origins to be pruned, got %d", got)
	}
}

func TestConcurrentOrigins(t *testing.T) {
	l := New(5, time.Minute)
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			key := fmt.Sprintf("10.0.0.%d", n)
			allowed := 0
			for j := 0; j < 20; j++ {
				if l.Allow(key) {
					allowed++
				}
			}
			if allowed != 5 {
				t.Errorf("origin %s: %d allowed, want 5", key, allowed)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if l.Len() != 8 {
		t.Fatalf("expected 8 tracked origins, got %d", l.Len())
	}
}
