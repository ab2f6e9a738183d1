package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/volunteerhub/volunteerhub/internal/app/notify"
	"github.com/volunteerhub/volunteerhub/internal/messaging"
	"github.com/volunteerhub/volunteerhub/internal/platform/dbpool"
	"github.com/volunteerhub/volunteerhub/internal/platform/env"
	"github.com/volunteerhub/volunteerhub/internal/platform/logging"
	"github.com/volunteerhub/volunteerhub/internal/platform/natsutil"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, err := logging.New(env.String("LOG_LEVEL", "info"), env.String("LOG_FORMAT", "json"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)

	pool, err := dbpool.New(ctx, pgURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	repository := notify.NewPostgresRepository(pool)
	if err := waitForPostgres(ctx, logger, pool, repository, 30*time.Second); err != nil {
		logger.Fatal("postgres readiness", zap.Error(err))
	}
	service := notify.NewService(repository)
	service.Logger = logger.Named("notify")

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		logger.Fatal("connect nats", zap.Error(err))
	}
	defer client.Close()

	sub, err := client.JS.QueueSubscribe(messaging.SubjectAssignments, "notify-worker", func(msg *nats.Msg) {
		insertCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := service.HandleAssignmentEvent(insertCtx, msg.Data); err != nil {
			if errors.Is(err, notify.ErrBadPayload) {
				logger.Warn("discarding malformed assignment event", zap.Error(err))
				_ = msg.Term()
				return
			}
			logger.Error("notification persistence failed", zap.Error(err))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		logger.Fatal("subscribe", zap.Error(err))
	}

	logger.Info("notify worker listening", zap.String("subject", sub.Subject))

	// Keep alive
	select {}
}

func waitForPostgres(
	ctx context.Context,
	logger *zap.Logger,
	pool *pgxpool.Pool,
	repository *notify.PostgresRepository,
	timeout time.Duration,
) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = repository.EnsureSchema(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		logger.Info("waiting for postgres readiness", zap.Error(lastErr))
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
