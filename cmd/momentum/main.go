package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/evdnx/gomomentum/config"
	"github.com/evdnx/gomomentum/engine"
	"github.com/evdnx/gomomentum/exchange"
	"github.com/evdnx/gomomentum/executor"
	"github.com/evdnx/gomomentum/feed"
	"github.com/evdnx/gomomentum/logger"
	"github.com/evdnx/gomomentum/types"
)

func main() {
	defaultPath := os.Getenv("MOMENTUM_CONFIG")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	cfgPath := flag.String("config", defaultPath, "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.NewZapLogger(cfg.Runtime.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("momentum_exit", logger.Err(err))
		os.Exit(1)
	}
	lg.Info("momentum_stopped")
}

func run(ctx context.Context, cfg *config.Config, lg logger.Logger) error {
	exec, err := buildExecutor(cfg, lg)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg.Trading, exec, engine.WithLogger(lg))
	if err != nil {
		return err
	}
	ticker := feed.NewOKXTicker(cfg.Runtime.FeedURL, cfg.Trading.Asset, feed.WithLogger(lg))
	observations := make(chan types.PriceObservation, 256)

	lg.Info("momentum_started",
		logger.String("asset", cfg.Trading.Asset),
		logger.Bool("dry_run", cfg.Runtime.DryRun),
		logger.String("order_type", cfg.Trading.OrderType),
		logger.String("metrics_addr", cfg.Runtime.MetricsAddr),
	)

	group, ctx := errgroup.WithContext(ctx)
	if cfg.Runtime.MetricsAddr != "" {
		group.Go(func() error { return serveMetrics(ctx, cfg.Runtime.MetricsAddr) })
	}
	group.Go(func() error { return ticker.Run(ctx, observations) })
	group.Go(func() error { return eng.Run(ctx, observations) })
	// The engine logs every outcome; nothing downstream consumes them yet.
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-eng.Outcomes():
			}
		}
	})
	return group.Wait()
}

func buildExecutor(cfg *config.Config, lg logger.Logger) (executor.Executor, error) {
	if cfg.Runtime.DryRun {
		return executor.NewPaperExecutor(cfg.Runtime.PaperBalance), nil
	}
	client, err := exchange.NewClient(cfg.Exchange, exchange.WithLogger(lg))
	if err != nil {
		return nil, fmt.Errorf("exchange client: %w", err)
	}
	return client, nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}
