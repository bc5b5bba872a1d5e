package control

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	c := NewCircuitBreaker(2, 100*time.Millisecond)
	now := time.Now()

	if c.State() != CircuitClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}

	c.RecordFailure("provider_api", now)
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed after first failure, got %s", c.State())
	}

	c.RecordFailure("provider_api", now)
	if c.State() != CircuitOpen {
		t.Fatalf("expected open after threshold failures, got %s", c.State())
	}
	if c.OpenedClass() != "provider_api" {
		t.Fatalf("expected provider_api class, got %s", c.OpenedClass())
	}

	if c.Allow(now.Add(10 * time.Millisecond)) {
		t.Fatal("expected deny while cooldown not elapsed")
	}
	if !c.Allow(now.Add(120 * time.Millisecond)) {
		t.Fatal("expected allow after cooldown")
	}
	if c.State() != CircuitHalfOpen {
		t.Fatalf("expected half_open, got %s", c.State())
	}

	c.RecordSuccess()
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed after probe success, got %s", c.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	c := NewCircuitBreaker(1, 50*time.Millisecond)
	now := time.Now()

	c.RecordFailure("timeout", now)
	if !c.Allow(now.Add(60 * time.Millisecond)) {
		t.Fatal("expected half-open probe to be allowed")
	}

	c.RecordFailure("timeout", now.Add(61*time.Millisecond))
	if c.State() != CircuitOpen {
		t.Fatalf("expected reopen after failed probe, got %s", c.State())
	}
	if c.Allow(now.Add(70 * time.Millisecond)) {
		t.Fatal("expected deny right after reopening")
	}
}

func TestCircuitBreaker_ClassesCountSeparately(t *testing.T) {
	c := NewCircuitBreaker(2, time.Second)
	now := time.Now()

	c.RecordFailure("timeout", now)
	c.RecordFailure("provider_api", now)
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed with mixed classes below threshold, got %s", c.State())
	}

	c.RecordFailure("timeout", now)
	if c.State() != CircuitOpen {
		t.Fatalf("expected open once one class hits threshold, got %s", c.State())
	}
	if c.OpenedClass() != "timeout" {
		t.Fatalf("expected timeout class, got %s", c.OpenedClass())
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	c := NewCircuitBreaker(3, 10*time.Millisecond)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				now := start.Add(time.Duration(j) * time.Millisecond)
				if c.Allow(now) {
					if (n+j)%3 == 0 {
						c.RecordFailure("timeout", now)
					} else {
						c.RecordSuccess()
					}
				}
				_ = c.State()
				_ = c.OpenedClass()
			}
		}(i)
	}
	wg.Wait()

	// Whatever interleaving happened, the breaker must settle in a valid state.
	switch c.State() {
	case CircuitClosed, CircuitOpen, CircuitHalfOpen:
	default:
		t.Fatalf("invalid state: %s", c.State())
	}
}
