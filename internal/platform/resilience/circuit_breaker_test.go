package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock drives the breaker's open timeout.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.now
	return cb, clock
}

func fail(cb *CircuitBreaker, err error) error {
	return cb.Execute(context.Background(), func(context.Context) error { return err })
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		Name:             "sns",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s->%s", from, to))
		},
	})

	for i := 0; i < 2; i++ {
		_ = fail(cb, errBoom)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state after 2 failures = %s, want closed", cb.State())
	}
	_ = fail(cb, errBoom)
	if cb.State() != StateOpen {
		t.Fatalf("state after 3 failures = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v, called = %v", err, called)
	}

	clock.advance(time.Minute + time.Second)
	if err := fail(cb, nil); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state after one trial success = %s, want half-open", cb.State())
	}
	_ = fail(cb, nil)
	if cb.State() != StateClosed {
		t.Fatalf("state after two trial successes = %s, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	_ = fail(cb, errBoom)
	clock.advance(2 * time.Minute)
	_ = fail(cb, errBoom)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	// The open period restarts from the trial failure.
	clock.advance(30 * time.Second)
	if err := fail(cb, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerCountsConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	for i := 0; i < 5; i++ {
		_ = fail(cb, errBoom)
		_ = fail(cb, nil)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed: failures were never consecutive", cb.State())
	}
}

func TestCircuitBreakerIgnoredErrors(t *testing.T) {
	tests := []struct {
		name      string
		isFailure func(error) bool
		err       error
	}{
		{"cancelled context", nil, context.Canceled},
		{"deadline", nil, fmt.Errorf("publish: %w", context.DeadlineExceeded)},
		{"custom filter", func(err error) bool { return !errors.Is(err, errBoom) }, errBoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, IsFailure: tt.isFailure})
			if err := fail(cb, tt.err); !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if cb.State() != StateClosed {
				t.Errorf("state = %s, want closed", cb.State())
			}
		})
	}
}

func TestCircuitBreakerDefaultsAndReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "events"})
	if cb.Name() != "events" {
		t.Errorf("Name() = %q", cb.Name())
	}
	if cb.cfg.FailureThreshold != 5 || cb.cfg.SuccessThreshold != 2 || cb.cfg.Timeout != time.Minute {
		t.Errorf("defaults = %+v", cb.cfg)
	}

	for i := 0; i < 5; i++ {
		_ = fail(cb, errBoom)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %s, want closed", cb.State())
	}
	if err := fail(cb, nil); err != nil {
		t.Errorf("call after Reset: %v", err)
	}
}

func TestCircuitBreakerConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				var err error
				if (i+j)%2 == 0 {
					err = errBoom
				}
				_ = fail(cb, err)
				_ = cb.State()
			}
		}(i)
	}
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
