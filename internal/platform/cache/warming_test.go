package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solve3fi/contracts/internal/platform/observability"
)

type stubProvider struct {
	name  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Warmup(ctx context.Context) error {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func TestWarmerModes(t *testing.T) {
	failure := errors.New("list failed")

	tests := []struct {
		name       string
		cfg        WarmupConfig
		wantCalls  []int32
		wantErrors int
	}{
		{"parallel", WarmupConfig{Parallel: true, MaxConcurrency: 2}, []int32{1, 1, 1}, 1},
		{"sequential continue", WarmupConfig{ContinueOnError: true}, []int32{1, 1, 1}, 1},
		{"sequential stop", WarmupConfig{}, []int32{1, 1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers := []*stubProvider{{name: "pools"}, {name: "ticks", err: failure}, {name: "positions"}}
			w := NewWarmer(observability.NewNopLogger(), tt.cfg)
			for _, p := range providers {
				w.RegisterProvider(p)
			}

			res := w.Warmup(context.Background())
			if res.Errors != tt.wantErrors || !res.HasErrors() {
				t.Errorf("Errors = %d, want %d", res.Errors, tt.wantErrors)
			}
			for i, p := range providers {
				if got := p.calls.Load(); got != tt.wantCalls[i] {
					t.Errorf("%s called %d times, want %d", p.name, got, tt.wantCalls[i])
				}
			}
			if tt.cfg.Parallel {
				for i, r := range res.Results {
					if r.Provider != providers[i].name {
						t.Errorf("result %d is %s, want %s", i, r.Provider, providers[i].name)
					}
				}
				if !errors.Is(res.Results[1].Err, failure) {
					t.Errorf("ticks error = %v", res.Results[1].Err)
				}
			}
		})
	}
}

func TestWarmerTimeout(t *testing.T) {
	w := NewWarmer(observability.NewNopLogger(), WarmupConfig{Timeout: 10 * time.Millisecond})
	w.RegisterProvider(&stubProvider{name: "slow", delay: time.Second})

	res := w.Warmup(context.Background())
	if !res.HasErrors() || !errors.Is(res.Results[0].Err, context.DeadlineExceeded) {
		t.Errorf("results = %+v, want a deadline error", res.Results)
	}
}

func TestWarmerWithoutProviders(t *testing.T) {
	res := NewWarmer(observability.NewNopLogger(), DefaultWarmupConfig()).Warmup(context.Background())
	if res.HasErrors() || len(res.Results) != 0 {
		t.Errorf("results = %+v", res)
	}
}
