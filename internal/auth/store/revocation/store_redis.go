package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"minimizer/internal/auth/models"
)

const sessionKeyPrefix = "minimizer:revoked-session:"

var redisCheckSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "minimizer_revocation_check_seconds",
	Help:    "Latency of revoked-session lookups in Redis",
	Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
})

// RedisStore shares the revocation list between server instances. Each key
// holds the username and expires with the token.
type RedisStore struct {
	client redis.Cmdable
	clock  Clock
}

func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, clock: time.Now}
}

func (s *RedisStore) Revoke(ctx context.Context, session models.RevokedSession) error {
	now := s.clock()
	if err := validate(session, now); err != nil {
		return err
	}
	ttl := session.ExpiresAt.Sub(now)
	if err := s.client.Set(ctx, sessionKeyPrefix+session.JTI, string(session.Username), ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	timer := prometheus.NewTimer(redisCheckSeconds)
	defer timer.ObserveDuration()

	err := s.client.Get(ctx, sessionKeyPrefix+jti).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return true, nil
}
