package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/volunteerhub/volunteerhub/internal/app/api"
	"github.com/volunteerhub/volunteerhub/internal/app/events"
	"github.com/volunteerhub/volunteerhub/internal/app/identity"
	"github.com/volunteerhub/volunteerhub/internal/app/matching"
	"github.com/volunteerhub/volunteerhub/internal/app/notify"
	"github.com/volunteerhub/volunteerhub/internal/app/profile"
	"github.com/volunteerhub/volunteerhub/internal/app/reports"
	"github.com/volunteerhub/volunteerhub/internal/platform/dbpool"
	"github.com/volunteerhub/volunteerhub/internal/platform/env"
	"github.com/volunteerhub/volunteerhub/internal/platform/logging"
	"github.com/volunteerhub/volunteerhub/internal/platform/metrics"
	"github.com/volunteerhub/volunteerhub/internal/platform/natsutil"
	"go.uber.org/zap"
)

type schemaRepo interface {
	EnsureSchema(ctx context.Context) error
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(env.String("LOG_LEVEL", "info"), env.String("LOG_FORMAT", "json"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	apiAddr := env.String("API_ADDR", env.DefaultAPIAddr)
	uiOrigin := env.String("UI_ORIGIN", "http://localhost:5173")
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	jwtSecret := env.String("JWT_SECRET", "dev-insecure-change-me")
	adminEmails := env.List("ADMIN_EMAILS")
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	identityRepo := identity.NewPostgresRepository(pool)
	eventsRepo := events.NewPostgresRepository(pool)
	profileRepo := profile.NewPostgresRepository(pool)
	matchingRepo := matching.NewPostgresRepository(pool)
	notifyRepo := notify.NewPostgresRepository(pool)

	// users and events first: profiles / assignments / notifications carry
	// foreign keys into them.
	schemas := []schemaRepo{identityRepo, eventsRepo, profileRepo, matchingRepo, notifyRepo}
	if err := waitForSchemas(runCtx, logger, schemas, 30*time.Second); err != nil {
		logger.Fatal("schema readiness", zap.Error(err))
	}

	client, err := natsutil.ConnectJetStreamWithRetry(env.String("NATS_URL", env.DefaultNATSURL), 20*time.Second)
	if err != nil {
		logger.Fatal("connect nats", zap.Error(err))
	}
	defer client.Close()

	identitySvc := identity.NewService(identityRepo, identity.NewTokenManager(jwtSecret), adminEmails)
	profileSvc := profile.NewService(profileRepo)
	eventSvc := events.NewService(eventsRepo)
	matchingSvc := matching.NewService(matchingRepo)
	matchingSvc.Publish = natsutil.JetStreamPublisher{JS: client.JS}.Publish
	matchingSvc.Logger = logger.Named("matching")
	notifySvc := notify.NewService(notifyRepo)
	notifySvc.Logger = logger.Named("notify")
	reportsRepo := reports.NewPostgresRepository(pool)

	handler := api.NewHandler(identitySvc, profileSvc, eventSvc, matchingSvc, notifySvc, reportsRepo, uiOrigin, logger.Named("http"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, client.Conn); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              apiAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("api server listening", zap.String("addr", apiAddr))
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Fatal("server failed", zap.Error(err))
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func waitForSchemas(ctx context.Context, logger *zap.Logger, repos []schemaRepo, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		lastErr = nil
		for _, repo := range repos {
			attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := repo.EnsureSchema(attemptCtx)
			cancel()
			if err != nil {
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		logger.Info("waiting for schema readiness", zap.Error(lastErr))
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, conn *nats.Conn) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	if conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", conn.Status().String())
	}

	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
