package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"minimizer/internal/archive"
	authhandler "minimizer/internal/auth/handler"
	authservice "minimizer/internal/auth/service"
	jwttoken "minimizer/internal/jwt_token"
	"minimizer/internal/platform/config"
	"minimizer/internal/platform/httpserver"
	"minimizer/internal/platform/logger"
	"minimizer/internal/platform/metrics"
	"minimizer/internal/ratelimit"
	httptransport "minimizer/internal/transport/http"
	trialhandler "minimizer/internal/trial/handler"
	trialmetrics "minimizer/internal/trial/metrics"
	trialservice "minimizer/internal/trial/service"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/audit/publisher"
	"minimizer/pkg/platform/audit/relay"
	"minimizer/pkg/platform/audit/worker"
	"minimizer/pkg/platform/circuit"
)

const (
	jwtIssuer   = "minimizer"
	jwtAudience = "minimizer-api"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if cfg.UsingDefaultSigningKey() {
		log.Warn("JWT_SIGNING_KEY is the development default")
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	archiveStore, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	platformMetrics := metrics.New()
	auditor := publisher.New(b.audit,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)
	ops := worker.New(b.audit,
		worker.WithLogger(log),
		worker.WithMetrics(worker.NewMetrics()),
	)

	jwt := jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience)

	var trialSvc *trialservice.Service
	authSvc := authservice.New(b.users, jwt, b.revoked, auditor,
		authservice.WithLogger(log),
		authservice.WithMetrics(platformMetrics),
		authservice.WithSessionTTL(cfg.SessionTTL),
		authservice.WithTrialLookup(func(ctx context.Context, trialID id.TrialID) error {
			_, err := trialSvc.GetTrial(ctx, trialID)
			return err
		}),
	)
	trialSvc = trialservice.New(b.trials, b.tx, auditor,
		trialservice.WithLogger(log),
		trialservice.WithMetrics(trialmetrics.New()),
		trialservice.WithTracker(ops),
		trialservice.WithAccessManager(authSvc),
		trialservice.WithArchive(archiveStore),
	)

	authLimiter := ratelimit.New(b.limits, "auth", cfg.RateLimit.AuthLimit, cfg.RateLimit.AuthWindow, log,
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:      log,
		Metrics:     platformMetrics,
		Validator:   jwttoken.NewJWTServiceAdapter(jwt),
		Revocations: authSvc,
		Auth:        authhandler.New(authSvc, log),
		AuthLimiter: authLimiter.Middleware,
		Trials:      trialhandler.New(trialSvc, log, trialhandler.WithTrialAccess(authSvc)),
		Health:      b.health,
	})
	srv := httpserver.New(cfg.Addr, router, cfg.HTTP)

	var auditRelay *relay.Relay
	if len(cfg.Kafka.Brokers) > 0 && b.outbox != nil {
		client, err := relay.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := relay.EnsureTopic(ctx, client, cfg.Kafka.Topic, 1, 1); err != nil {
			return err
		}
		auditRelay = relay.New(b.outbox, client, cfg.Kafka.Topic,
			relay.WithInterval(cfg.Kafka.RelayInterval),
			relay.WithBatchSize(cfg.Kafka.BatchSize),
			relay.WithLogger(log),
			relay.WithMetrics(relay.NewMetrics()),
			relay.WithBreaker(circuit.New("audit-relay", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second))),
		)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting minimizer", "addr", cfg.Addr, "store", cfg.StoreDriver, "archive", cfg.Archive.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ops.Run(ctx)
	})
	if auditRelay != nil {
		g.Go(func() error {
			log.Info("audit relay enabled", "topic", cfg.Kafka.Topic)
			return auditRelay.Run(ctx)
		})
	}
	return g.Wait()
}
