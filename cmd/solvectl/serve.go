package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/solve3fi/contracts/internal/engine"
	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/platform/config"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/scenario"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap the engine, replay configured scenarios and serve health and metrics",
		RunE:  serve,
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Loading configuration...")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Println("Setting up infrastructure...")
	a, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	eng, err := a.engine(engine.SystemClock{})
	if err != nil {
		return err
	}

	if cfg.Bootstrap.Enabled {
		a.logger.Info("bootstrapping global config...", "namespace", cfg.Engine.Namespace)
		if err := bootstrap(ctx, eng, cfg); err != nil {
			a.logger.LogError(ctx, "bootstrap failed", err)
			return err
		}
	}

	var scenarios []*scenario.Scenario
	if len(cfg.Scenarios) > 0 {
		if scenarios, err = scenario.LoadAll(cfg.Scenarios); err != nil {
			return err
		}
	}

	var ready atomic.Bool
	a.logger.Info("starting HTTP server...")
	srv := startHTTPServer(cfg.HTTP.Port, a, &ready)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if len(scenarios) > 0 {
			reports, err := a.runner(0).RunAll(ctx, scenarios)
			if err != nil {
				a.logger.LogError(ctx, "scenario replay failed", err)
				cancel()
				return
			}
			a.logger.Info("configured scenarios replayed", "count", len(reports))
		}
		ready.Store(true)
		a.logger.Info("engine ready")
	}()

	select {
	case <-sigCh:
		a.logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
		a.logger.Info("startup failed, stopping...")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.LogError(shutdownCtx, "HTTP server shutdown failed", err)
	}
	cancel()
	a.logger.Info("application stopped")
	return nil
}

// bootstrap creates the configured global config and fee tiers. Records left
// by an earlier run are kept.
func bootstrap(ctx context.Context, eng *engine.Engine, cfg *config.Config) error {
	fee, collect, rewardSuper := cfg.Bootstrap.Authorities()
	key, err := eng.InitializeConfig(ctx, cfg.Engine.Namespace, engine.Authorities{
		Fee:                  fee,
		CollectProtocolFees:  collect,
		RewardEmissionsSuper: rewardSuper,
	}, cfg.Bootstrap.DefaultProtocolFeeRate)
	if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
		return fmt.Errorf("initialize config: %w", err)
	}

	for _, ft := range cfg.Bootstrap.FeeTiers {
		if _, err := createFeeTier(ctx, eng, key, fee, ft); err != nil {
			return err
		}
	}
	return nil
}

func createFeeTier(ctx context.Context, eng *engine.Engine, configKey, authority solana.PublicKey, ft config.FeeTierConfig) (solana.PublicKey, error) {
	key, err := eng.CreateFeeTier(ctx, configKey, authority, ft.TickSpacing, ft.DefaultFeeRate)
	if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
		return key, fmt.Errorf("create fee tier %d: %w", ft.TickSpacing, err)
	}
	return key, nil
}

// startHTTPServer serves health, readiness and metrics in the background.
func startHTTPServer(port int, a *app, ready *atomic.Bool) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newMux(a.meters, a.dispatcherStats, ready),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.logger.Info("HTTP server listening", "address", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.LogError(context.Background(), "HTTP server error", err)
		}
	}()
	return server
}

func (a *app) dispatcherStats() any {
	return a.dispatcher.Stats()
}

func newMux(meters observability.MeterProvider, stats func() any, ready *atomic.Bool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "events": stats()})
	})

	mux.Handle("/metrics", meters.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
