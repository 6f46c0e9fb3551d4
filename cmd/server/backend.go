package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	authservice "minimizer/internal/auth/service"
	"minimizer/internal/auth/store/revocation"
	userstore "minimizer/internal/auth/store/user"
	"minimizer/internal/platform/config"
	"minimizer/internal/platform/postgres"
	"minimizer/internal/platform/redis"
	"minimizer/internal/platform/sqlite"
	"minimizer/internal/ratelimit"
	httptransport "minimizer/internal/transport/http"
	"minimizer/internal/trial/lock"
	trialservice "minimizer/internal/trial/service"
	trialstore "minimizer/internal/trial/store"
	audit "minimizer/pkg/platform/audit"
	auditmemory "minimizer/pkg/platform/audit/store/memory"
	auditpostgres "minimizer/pkg/platform/audit/store/postgres"
	auditsqlite "minimizer/pkg/platform/audit/store/sqlite"
)

// backend groups the storage chosen by STORE_DRIVER and the optional Redis
// layer in front of it.
type backend struct {
	trials  trialservice.Store
	tx      trialservice.StoreTx
	audit   audit.Store
	users   authservice.UserStore
	revoked authservice.RevocationList
	limits  ratelimit.Store

	// outbox is set only for postgres; the Kafka relay drains it.
	outbox *auditpostgres.Store

	health  map[string]httptransport.HealthCheck
	closers []func() error
}

func openBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (*backend, error) {
	b := &backend{
		limits: ratelimit.NewInMemoryStore(),
		health: make(map[string]httptransport.HealthCheck),
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			b.close()
			return nil, err
		}
		outbox := auditpostgres.New(db)
		b.trials = trialstore.NewPostgres(db)
		b.tx = trialstore.NewPostgresTx(db, cfg.TrialTxTimeout)
		b.audit = outbox
		b.outbox = outbox
		b.users = userstore.NewPostgres(db)
		b.revoked = revocation.NewPostgres(db)
		b.health["postgres"] = pinger(db)
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.trials = trialstore.NewSQLite(db)
		b.tx = trialstore.NewSQLiteTx(db, cfg.TrialTxTimeout)
		b.audit = auditsqlite.New(db)
		b.users = userstore.NewSQLite(db)
		b.revoked = revocation.NewSQLite(db)
		b.health["sqlite"] = pinger(db)
	default:
		log.Warn("using in-memory store; all data is lost on restart")
		b.trials = trialstore.NewInMemory()
		b.tx = trialstore.NewShardedTx(cfg.TrialTxTimeout)
		b.audit = auditmemory.NewInMemoryStore()
		b.users = userstore.New()
		b.revoked = revocation.NewInMemory()
	}

	client, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		b.close()
		return nil, err
	}
	if client != nil {
		b.closers = append(b.closers, client.Close)
		b.tx = lock.New(b.tx, client, cfg.Redis.LockTTL)
		b.revoked = revocation.NewRedis(client)
		b.limits = ratelimit.NewRedisStore(client)
		b.health["redis"] = redis.Check(client)
		log.Info("redis enabled for trial leases, token revocation and rate limits")
	}
	return b, nil
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func pinger(db *sql.DB) httptransport.HealthCheck {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		return nil
	}
}
