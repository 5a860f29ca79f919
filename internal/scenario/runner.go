package scenario

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solve3fi/contracts/internal/engine"
	"github.com/solve3fi/contracts/internal/platform/config"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/platform/resilience"
	"github.com/solve3fi/contracts/internal/store"
)

// Runner replays scenarios. Each scenario gets its own engine and simulated
// clock; all of them share Store when it is set.
type Runner struct {
	// Store backs every scenario. Nil gives each scenario a fresh in-memory
	// store.
	Store         store.Store
	Registry      *config.TokenRegistry
	Publisher     engine.EventPublisher
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Tracer        observability.Tracer
	ConflictRetry *resilience.RetryConfig
	// Concurrency bounds how many scenarios RunAll replays at once. Zero or
	// less runs them all at once.
	Concurrency int
}

// Report summarizes one replayed scenario.
type Report struct {
	Name     string
	Steps    int
	Duration time.Duration
	Session  *Session
}

// Start prepares a session for sc without running any step.
func (r *Runner) Start(sc *Scenario) (*Session, error) {
	st := r.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	clock := NewSimClock(sc.StartTime)
	eng, err := engine.New(engine.Config{
		Store:         st,
		Clock:         clock,
		Publisher:     r.Publisher,
		Logger:        r.Logger,
		Metrics:       r.Metrics,
		Tracer:        r.Tracer,
		ConflictRetry: r.ConflictRetry,
	})
	if err != nil {
		return nil, err
	}
	return newSession(sc, eng, clock, NewKeyring(sc.Namespace, r.Registry)), nil
}

// Run replays every step of sc. It stops at the first step that fails or
// whose outcome differs from its expect_error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	logger := r.logger()
	sess, err := r.Start(sc)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := sess.run(ctx, st)
		switch {
		case st.ExpectError != "" && err == nil:
			return nil, fmt.Errorf("%s: %s: expected error %q, got none", sc.Name, stepName(i, st), st.ExpectError)
		case st.ExpectError != "" && !matchError(err, st.ExpectError):
			return nil, fmt.Errorf("%s: %s: expected error %q: %w", sc.Name, stepName(i, st), st.ExpectError, err)
		case st.ExpectError == "" && err != nil:
			return nil, fmt.Errorf("%s: %s: %w", sc.Name, stepName(i, st), err)
		}
		logger.LogDebug(ctx, "scenario step done",
			"scenario", sc.Name,
			"step", i+1,
			"op", st.Op,
		)
	}

	rep := &Report{
		Name:     sc.Name,
		Steps:    len(sc.Steps),
		Duration: time.Since(start),
		Session:  sess,
	}
	logger.LogInfo(ctx, "scenario complete",
		"scenario", sc.Name,
		"steps", rep.Steps,
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, nil
}

// RunAll replays scenarios concurrently. Reports come back in input order;
// the first failure cancels the rest.
func (r *Runner) RunAll(ctx context.Context, scenarios []*Scenario) ([]*Report, error) {
	g, ctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}

	reports := make([]*Report, len(scenarios))
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			rep, err := r.Run(ctx, sc)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *Runner) logger() *observability.Logger {
	if r.Logger == nil {
		return observability.NewNopLogger().Component("scenario")
	}
	return r.Logger.Component("scenario")
}
