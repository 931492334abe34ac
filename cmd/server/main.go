// Command server runs the bounty Q&A HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"bounty-qa/internal/app"
	"bounty-qa/internal/broadcast"
	"bounty-qa/internal/config"
	"bounty-qa/internal/escrow"
	"bounty-qa/internal/events"
	"bounty-qa/internal/httpapi"
	"bounty-qa/internal/platform/logging"
	"bounty-qa/internal/qa"
	"bounty-qa/internal/ranking"
	"bounty-qa/internal/registry"
	"bounty-qa/internal/voting"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	ledgerClient := app.NewLedgerClient(cfg, logger)
	policy := app.RetryPolicy(cfg)

	reg := registry.New(registry.Options{
		Ledger:      ledgerClient,
		CallTimeout: cfg.LedgerTimeout,
		Retry:       policy,
		Logger:      logger,
	})

	hub := broadcast.NewHub(broadcast.Options{
		MaxPerAnswer: cfg.WSMaxPerAnswer,
		Clock:        clock,
		Logger:       logger,
	})
	defer hub.Close()

	notifiers := voting.Notifiers{hub}
	if stores.Archive != nil {
		notifiers = append(notifiers, events.NewArchiveNotifier(stores.Archive, logger))
	}
	if cfg.KafkaBrokers != "" {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	settler, err := escrow.NewSettler(escrow.Options{
		Ledger:   ledgerClient,
		Answers:  stores.Answers,
		Votes:    stores.Votes,
		Timeout:  cfg.LedgerTimeout,
		Retry:    policy,
		Interval: cfg.SettleInterval,
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	notifiers = append(notifiers, settler)

	ledger, err := voting.NewLedger(voting.Options{
		Answers:      stores.Answers,
		Votes:        stores.Votes,
		Registry:     reg,
		Clock:        clock,
		Quorum:       cfg.FinalizeQuorum,
		StoreTimeout: cfg.StoreTimeout,
		Notifier:     notifiers,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	engine, err := ranking.NewEngine(cfg.DecayConstant)
	if err != nil {
		return err
	}
	logger.Info("ranking engine ready", "ranking", engine)
	svc, err := qa.NewService(qa.Options{
		Questions:    stores.Questions,
		Answers:      stores.Answers,
		Votes:        stores.Votes,
		Engine:       engine,
		Clock:        clock,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(httpapi.Options{
		QA:       svc,
		Ledger:   ledger,
		Registry: reg,
		Hub:      hub,
		Health:   stores.HealthChecks(),
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.HTTPAddr)
	})
	g.Go(func() error {
		return settler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
