// Package cache provides an in-process LRU cache with warming support.
package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solve3fi/contracts/internal/platform/observability"
)

// WarmupProvider loads a set of entries into a cache ahead of traffic.
type WarmupProvider interface {
	// Name returns a human-readable name for logging purposes
	Name() string

	// Warmup pre-populates the cache. It must be safe to call more than once.
	Warmup(ctx context.Context) error
}

// WarmupConfig configures the cache warming behavior.
type WarmupConfig struct {
	// Timeout bounds the whole warmup
	Timeout time.Duration

	// ContinueOnError keeps going after a provider fails (sequential mode)
	ContinueOnError bool

	// Parallel warms providers concurrently, at most MaxConcurrency at a time
	Parallel       bool
	MaxConcurrency int
}

// DefaultWarmupConfig returns sensible defaults for cache warming.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
		MaxConcurrency:  4,
	}
}

// WarmupResult contains the result of warming a single provider.
type WarmupResult struct {
	Provider string
	Duration time.Duration
	Err      error
}

// WarmupResults contains the aggregate results of cache warming.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors returns true if any provider failed during warmup.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer runs registered warmup providers.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

// NewWarmer creates a new cache warmer.
func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	if config.Timeout <= 0 {
		config.Timeout = DefaultWarmupConfig().Timeout
	}
	return &Warmer{logger: logger, config: config}
}

// RegisterProvider adds a warmup provider to the warmer.
func (w *Warmer) RegisterProvider(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup executes all registered providers and reports per-provider results.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{}
	if len(w.providers) == 0 {
		return results
	}

	warmupCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if w.config.Parallel {
		results.Results = w.warmupParallel(warmupCtx)
	} else {
		results.Results = w.warmupSequential(warmupCtx)
	}

	for _, r := range results.Results {
		if r.Err != nil {
			results.Errors++
		}
	}
	results.TotalTime = time.Since(start)

	if results.Errors > 0 {
		w.logger.LogWarn(ctx, "cache warmup completed with errors",
			slog.Int("errors", results.Errors),
			slog.Int("providers", len(w.providers)),
			slog.Duration("took", results.TotalTime))
	} else {
		w.logger.LogInfo(ctx, "cache warmup completed",
			slog.Int("providers", len(w.providers)),
			slog.Duration("took", results.TotalTime))
	}
	return results
}

// warmupParallel runs providers concurrently. Results keep registration
// order.
func (w *Warmer) warmupParallel(ctx context.Context) []WarmupResult {
	results := make([]WarmupResult, len(w.providers))

	var g errgroup.Group
	if w.config.MaxConcurrency > 0 {
		g.SetLimit(w.config.MaxConcurrency)
	}
	for i, p := range w.providers {
		i, p := i, p
		g.Go(func() error {
			results[i] = w.warmupProvider(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (w *Warmer) warmupSequential(ctx context.Context) []WarmupResult {
	results := make([]WarmupResult, 0, len(w.providers))
	for _, provider := range w.providers {
		result := w.warmupProvider(ctx, provider)
		results = append(results, result)
		if result.Err != nil && !w.config.ContinueOnError {
			break
		}
	}
	return results
}

func (w *Warmer) warmupProvider(ctx context.Context, provider WarmupProvider) WarmupResult {
	start := time.Now()
	name := provider.Name()

	err := provider.Warmup(ctx)
	duration := time.Since(start)

	if err != nil {
		w.logger.LogWarn(ctx, "cache warmup failed", slog.String("provider", name), slog.Any("error", err), slog.Duration("took", duration))
	} else {
		w.logger.LogDebug(ctx, "cache warmup finished", slog.String("provider", name), slog.Duration("took", duration))
	}

	return WarmupResult{Provider: name, Duration: duration, Err: err}
}
