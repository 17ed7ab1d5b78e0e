// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/adminops"
	adminpg "github.com/ourcaldo/indexnow-mono-sub007/internal/adminops/store/postgres"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/audit"
	auditkafka "github.com/ourcaldo/indexnow-mono-sub007/internal/audit/publishers/kafka"
	auditpg "github.com/ourcaldo/indexnow-mono-sub007/internal/audit/store/postgres"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/billing"
	billingpg "github.com/ourcaldo/indexnow-mono-sub007/internal/billing/store/postgres"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/platform/config"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/platform/httpserver"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/platform/logger"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/platform/postgres"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/platform/redis"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/ratelimit"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/resilience"
	"github.com/ourcaldo/indexnow-mono-sub007/internal/secureops"
	httptransport "github.com/ourcaldo/indexnow-mono-sub007/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Shared(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres init failed", "error", err)
		os.Exit(1)
	}
	if db == nil {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit records land in Postgres; with brokers configured they are also
	// published to Kafka for compliance consumers. Either way the gateway
	// only ever talks to the buffered async sink.
	var sink audit.Sink = auditpg.New(db.Pool)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := auditkafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("kafka audit publisher init failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		pgSink := sink
		sink = audit.SinkFunc(func(ctx context.Context, rec audit.Record) error {
			if err := pgSink.Record(ctx, rec); err != nil {
				return err
			}
			return publisher.Record(ctx, rec)
		})
	}
	asyncSink := audit.NewAsyncSink(sink, 4096, log)

	registry := resilience.NewRegistry(cfg.Resilience.BreakerThreshold, cfg.Resilience.BreakerCooldown)
	executorOpts := []resilience.ExecutorOption{
		resilience.WithBackoff(resilience.Backoff{
			MaxAttempts: cfg.Resilience.MaxAttempts,
			BaseDelay:   cfg.Resilience.BaseDelay,
			MaxDelay:    cfg.Resilience.MaxDelay,
			Jitter:      true,
		}),
		resilience.WithLogger(log),
	}
	if redisClient != nil {
		executorOpts = append(executorOpts,
			resilience.WithFallback(resilience.NewCacheFallback(redisClient.Client, time.Hour)))
	}
	executor := resilience.NewExecutor(registry, executorOpts...)

	gateway := secureops.NewGateway(executor, asyncSink,
		secureops.WithLogger(log),
		secureops.WithMetrics(secureops.NewMetrics()),
	)

	limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.MaxEntries)
	defer limiter.Close()

	engine := billing.NewEngine(billingpg.New(db.Pool), billing.WithLogger(log))

	admin := adminops.New(
		gateway,
		limiter,
		ratelimit.Policy{MaxAttempts: cfg.RateLimit.MaxAttempts, Window: cfg.RateLimit.Window},
		engine,
		adminpg.New(db.Pool),
		adminops.WithLogger(log),
	)

	handler := httptransport.NewHandler(admin, log)
	authMW := httptransport.NewAuthMiddleware(cfg.JWTSigningKey, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, authMW))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return asyncSink.Run(gctx)
	})

	g.Go(func() error {
		log.Info("starting secure operation gateway", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return httpserver.Shutdown(srv, 10*time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	asyncSink.Close()
}
