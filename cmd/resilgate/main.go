// resilgate is the resilience control plane service: a token-bucket admission
// gate in front of inbound traffic and circuit breakers around outbound
// dependencies, with prometheus metrics and an admin surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/halcyonlabs/resilgate/internal/breaker"
	"github.com/halcyonlabs/resilgate/internal/config"
	"github.com/halcyonlabs/resilgate/internal/ratelimit"
	"github.com/halcyonlabs/resilgate/internal/server"
	"github.com/halcyonlabs/resilgate/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "resilgate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Admission gate: key policy + in-memory bucket store.
	rules := make([]ratelimit.CategoryRule, 0, len(cfg.RateLimit.Categories))
	for _, cat := range cfg.RateLimit.Categories {
		rules = append(rules, ratelimit.CategoryRule{
			Name:          cat.Name,
			Patterns:      cat.Patterns,
			RatePerMinute: cat.RatePerMinute,
			Burst:         cat.Burst,
			Cost:          cat.Cost,
		})
	}
	policy := ratelimit.NewKeyPolicy(rules, ratelimit.CategoryRule{
		Name:          "default",
		RatePerMinute: cfg.RateLimit.DefaultRatePerMinute,
		Burst:         cfg.RateLimit.DefaultBurst,
	})
	store := ratelimit.NewMemoryStore(cfg.RateLimit.IdleTimeout)
	limiter := ratelimit.NewLimiter(store, policy, log)

	// Breaker registry with transition metrics wired in.
	defaults := cfg.Breaker.Defaults
	defaults.OnStateChange = breaker.RecordTransition
	registry := breaker.NewRegistry(defaults, cfg.Breaker.Dependencies, log)
	prometheus.MustRegister(breaker.NewCollector(registry))

	srv := server.New(cfg, limiter, registry, log)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("resilgate listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
