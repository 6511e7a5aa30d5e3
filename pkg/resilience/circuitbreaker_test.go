package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("redis", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	fail := errors.New("down")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return fail }); !errors.Is(err, fail) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open circuit ran fn (called=%v, err=%v)", called, err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("kafka", BreakerConfig{FailureThreshold: 2})
	fail := errors.New("down")

	cb.Execute(func() error { return fail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return fail })
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestBreakerProbeAfterReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("postgres", BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }
	fail := errors.New("down")

	cb.Execute(func() error { return fail })
	if cb.State() != StateOpen {
		t.Fatalf("state = %s", cb.State())
	}

	now = now.Add(11 * time.Second)
	if err := cb.Execute(func() error { return fail }); !errors.Is(err, fail) {
		t.Fatalf("probe not attempted: %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("failed probe should re-open, state = %s", cb.State())
	}

	now = now.Add(11 * time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
}
