package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"storyledger/internal/audit"
	"storyledger/internal/audit/stream"
	"storyledger/internal/consent"
	"storyledger/internal/distribution"
	"storyledger/internal/gdpr"
	"storyledger/internal/notification"
	"storyledger/internal/platform/config"
	"storyledger/internal/platform/httpserver"
	"storyledger/internal/platform/logger"
	"storyledger/internal/platform/metrics"
	"storyledger/internal/platform/redis"
	"storyledger/internal/story"
	transport "storyledger/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Env)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores. Without a postgres URL everything runs in-process, which is
	// enough for local development.
	var (
		stories    story.Store
		txRunner   story.TxRunner
		auditStore audit.Store
		distStore  distribution.Store
		reqStore   gdpr.RequestStore
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		pgStories := story.NewPostgresStore(db)
		stories, txRunner = pgStories, pgStories
		auditStore = audit.NewPostgresStore(db)
		distStore = distribution.NewPostgresStore(db)
		reqStore = gdpr.NewPostgresRequestStore(db)
		log.Info("using postgres stores")
	} else {
		memStories := story.NewMemoryStore()
		stories, txRunner = memStories, memStories
		auditStore = audit.NewMemoryStore()
		distStore = distribution.NewMemoryStore()
		reqStore = gdpr.NewMemoryRequestStore()
		log.Warn("no postgres configured, using in-memory stores")
	}

	// Export artifacts live in redis when configured so expiry is enforced
	// by the store.
	var artifacts gdpr.ArtifactStore = gdpr.NewMemoryArtifactStore()
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		artifacts = gdpr.NewRedisArtifactStore(redisClient)
		log.Info("using redis export artifact store")
	}

	// Audit stream is optional; the database row is always the record of
	// truth.
	var (
		streamPub audit.StreamPublisher
		worker    *stream.Publisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		worker, err = stream.New(cfg.KafkaBrokers, cfg.AuditTopic, log, m)
		if err != nil {
			return fmt.Errorf("create audit stream: %w", err)
		}
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := worker.EnsureTopic(topicCtx); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		streamPub = worker
		log.Info("audit stream enabled", "topic", cfg.AuditTopic)
	}

	auditLog := audit.NewLog(auditStore, streamPub, log, m)
	dispatcher := notification.NewResendDispatcher(cfg.EmailAPIKey, cfg.EmailFrom, cfg.EmailFromName, log, m)
	ledger := consent.NewLedger(stories, txRunner, auditLog, dispatcher, log, m)
	gate := distribution.NewGate(ledger)
	distSvc := distribution.NewService(gate, distStore, auditLog, dispatcher, log)
	gdprSvc := gdpr.NewService(ledger, distSvc, auditLog, reqStore, artifacts, dispatcher, log, cfg.BaseURL, cfg.ExportTTL)

	router := transport.NewRouter(transport.Services{
		Ledger:        ledger,
		Audit:         auditLog,
		Distributions: distSvc,
		GDPR:          gdprSvc,
	}, []byte(cfg.JWTSigningKey), log)

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
