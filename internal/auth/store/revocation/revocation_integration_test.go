//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"minimizer/internal/auth/models"
	"minimizer/internal/auth/store/revocation"
	id "minimizer/pkg/domain"
	"minimizer/pkg/testutil/containers"
)

type revocationList interface {
	Revoke(ctx context.Context, session models.RevokedSession) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type SharedRevocationSuite struct {
	suite.Suite
	redis    *containers.RedisContainer
	postgres *containers.PostgresContainer
	ctx      context.Context
}

func TestSharedRevocationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SharedRevocationSuite))
}

func (s *SharedRevocationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.postgres = mgr.GetPostgres(s.T())
	s.ctx = context.Background()
}

func (s *SharedRevocationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "token_revocations"))
}

func session(jti string, ttl time.Duration) models.RevokedSession {
	now := time.Now()
	return models.RevokedSession{
		JTI:       jti,
		SessionID: id.SessionID(uuid.New()),
		Username:  "alice",
		RevokedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *SharedRevocationSuite) TestRevokeAndCheck() {
	lists := map[string]revocationList{
		"redis":    revocation.NewRedis(s.redis.Client),
		"postgres": revocation.NewPostgres(s.postgres.DB),
	}
	for name, list := range lists {
		s.Run(name, func() {
			s.Require().NoError(list.Revoke(s.ctx, session(name+"-jti", time.Minute)))

			revoked, err := list.IsRevoked(s.ctx, name+"-jti")
			s.Require().NoError(err)
			s.True(revoked)

			revoked, err = list.IsRevoked(s.ctx, name+"-other")
			s.Require().NoError(err)
			s.False(revoked)
		})
	}
}

func (s *SharedRevocationSuite) TestEntriesLapse() {
	lists := map[string]revocationList{
		"redis":    revocation.NewRedis(s.redis.Client),
		"postgres": revocation.NewPostgres(s.postgres.DB),
	}
	for name, list := range lists {
		s.Run(name, func() {
			s.Require().NoError(list.Revoke(s.ctx, session(name+"-short", 100*time.Millisecond)))
			s.Eventually(func() bool {
				revoked, err := list.IsRevoked(s.ctx, name+"-short")
				return err == nil && !revoked
			}, 5*time.Second, 50*time.Millisecond)
		})
	}
}

func (s *SharedRevocationSuite) TestPostgresPurgesLapsedRows() {
	list := revocation.NewPostgres(s.postgres.DB)
	s.Require().NoError(list.Revoke(s.ctx, session("lapsing", 50*time.Millisecond)))
	time.Sleep(100 * time.Millisecond)
	s.Require().NoError(list.Revoke(s.ctx, session("fresh", time.Hour)))

	var n int
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM token_revocations`).Scan(&n))
	s.Equal(1, n)
}
