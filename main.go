package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/api"
	"github.com/refset/freight-risk-quoting/internal/config"
	"github.com/refset/freight-risk-quoting/internal/kafka"
	"github.com/refset/freight-risk-quoting/internal/logging"
	"github.com/refset/freight-risk-quoting/internal/pipeline"
	"github.com/refset/freight-risk-quoting/internal/ratesource"
	"github.com/refset/freight-risk-quoting/internal/reliability"
	"github.com/refset/freight-risk-quoting/internal/risk"
	"github.com/refset/freight-risk-quoting/internal/store"
	"github.com/refset/freight-risk-quoting/internal/validate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tables := risk.DefaultTables()

	var st store.Store = store.NewMemory()
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresFromConnString(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return err
		}
		st = pg
		logger.Info("Using Postgres store")
	}
	defer st.Close()

	var pub kafka.Publisher = kafka.Discard{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.SnapshotsTopic, cfg.Kafka.QuotesTopic, logger.Named("kafka"))
		logger.Info("Publishing events to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	defer func() { _ = pub.Close() }()

	var rel reliability.Source = reliability.NewStatic(tables)
	if cfg.Redis.Addr != "" {
		client, src := reliability.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ReliabilityKey, tables, logger.Named("reliability"))
		defer client.Close()
		rel = src
	}

	var rates ratesource.Source = ratesource.NewStatic(validate.Rates(staticRates(cfg.Rates.Static)))
	if cfg.Rates.ServiceURL != "" {
		client := ratesource.NewClient(cfg.Rates.ServiceURL, 10*time.Second)
		if err := client.Ping(ctx); err != nil {
			logger.Warn("Rate service not reachable yet", zap.Error(err))
		}
		poller := ratesource.NewPoller(client, cfg.Rates.PollInterval, logger.Named("rates"))
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Rate poller stopped", zap.Error(err))
			}
		}()
		rates = poller
	}

	svc := pipeline.New(pipeline.Deps{
		Tables:      tables,
		Scoring:     cfg.ScoringConfig(),
		Pricing:     cfg.PricingConfig(),
		Rates:       rates,
		Reliability: rel,
		Store:       st,
		Publisher:   pub,
		Retry: pipeline.RetryPolicy{
			InitialInterval: cfg.Retry.InitialInterval,
			Multiplier:      cfg.Retry.Multiplier,
			MaxTries:        cfg.Retry.MaxTries,
		},
		Log: logger.Named("pipeline"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(svc, logger.Named("http"), api.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	logger.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}

func staticRates(ms []map[string]any) []any {
	out := make([]any, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}
