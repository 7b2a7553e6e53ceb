package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"git.sr.ht/~aondrejcak/payout-api/claims"
	"git.sr.ht/~aondrejcak/payout-api/endpoints"
	"git.sr.ht/~aondrejcak/payout-api/events"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/ledger"
	"git.sr.ht/~aondrejcak/payout-api/orchestrator"
	"git.sr.ht/~aondrejcak/payout-api/rates"
	"git.sr.ht/~aondrejcak/payout-api/settlement"
	"git.sr.ht/~aondrejcak/payout-api/webhooks"
	"git.sr.ht/~aondrejcak/payout-api/workqueue"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the payment pipeline workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create or update tables before serving")
	return cmd
}

func serve(migrate bool) error {
	art, err := kernel.LoadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := art.Logger

	if art.IsProduction() {
		logger.Info().Msg(" === RUNNING IN PRODUCTION MODE ===")
		gin.SetMode(gin.ReleaseMode)
	}

	cleanupFunc, err := art.SetupOtel()
	if err != nil {
		return err
	}
	defer cleanupFunc()

	span, _ := art.Diagnostic.BeginTracing(ctx, "main")
	defer span.End()

	if err := art.PrepareDatabase(migrate); err != nil {
		span.RecordError(err)
		return fmt.Errorf("preparing database: %w", err)
	}
	store := ledger.New(art.DatabaseClient)

	rateTable := rates.Default()
	if art.RatesFile != "" {
		if rateTable, err = rates.LoadFile(art.RatesFile); err != nil {
			return err
		}
		logger.Info().Str("file", art.RatesFile).Msg("exchange rates loaded")
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(art.KafkaBrokers) > 0 {
		writer := events.NewKafkaWriter(art.KafkaBrokers)
		defer func(w *kafka.Writer) {
			if err := w.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing kafka writer")
			}
		}(writer)
		publisher = events.NewKafkaPublisher(writer, art.KafkaTopic, logger)
		logger.Info().Strs("brokers", art.KafkaBrokers).Str("topic", art.KafkaTopic).Msg("publishing payment events to kafka")
	}

	var claimer claims.Claimer = claims.NewMemory()
	if art.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: art.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", art.RedisAddr, err)
		}
		claimer = claims.NewRedis(rdb, art.ServiceName+":")
	}

	pool := workqueue.New(art.PipelineWorkers, art.PipelineQueue, logger)
	payments := orchestrator.New(orchestrator.ConfigFrom(art), orchestrator.Deps{
		Store:      store,
		Rates:      rateTable,
		Settlement: settlement.NewSimulated(art.SettlementConfirmDelay, logger),
		Pool:       pool,
		Events:     publisher,
		Diagnostic: art.Diagnostic,
		Logger:     logger,
	})
	reconciler := webhooks.New(webhooks.Config{
		Secret:         art.WebhookSecret,
		MissingPayment: webhooks.MissingPolicy(art.WebhookMissingPayment),
	}, store, claimer, art.Diagnostic, logger)
	if art.WebhookSecret == "" {
		logger.Warn().Msg("WEBHOOK_SECRET is not set, webhook signatures are not verified")
	}

	r, err := endpoints.NewRouter(art, endpoints.Services{
		Store:      store,
		Payments:   payments,
		Reconciler: reconciler,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	// Pipelines outlive the signal context; pool.Stop owns their cancellation.
	pool.Start(context.Background())
	if _, err := payments.ResumePending(ctx); err != nil {
		logger.Error().Err(err).Msg("resuming pending payments")
	}

	srv := &http.Server{
		Addr:              art.Host,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", art.Host).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			span.RecordError(err)
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("pipeline shutdown")
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			art, err := kernel.LoadConfig()
			if err != nil {
				return err
			}
			if err := art.PrepareDatabase(true); err != nil {
				return err
			}
			art.Logger.Info().Str("driver", art.DatabaseDriver).Msg("migrations applied")
			return nil
		},
	}
}
