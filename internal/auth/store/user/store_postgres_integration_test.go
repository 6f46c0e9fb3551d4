//go:build integration

package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
	txcontext "minimizer/pkg/platform/tx"
	"minimizer/pkg/testutil/containers"
)

type PostgresUserStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresUserStore
	ctx      context.Context
}

func TestPostgresUserStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresUserStoreSuite))
}

func (s *PostgresUserStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresUserStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "users"))
}

func (s *PostgresUserStoreSuite) TestCreateAndFind() {
	user := newUser("jane")
	user.Trials = []id.TrialID{"T1"}
	s.Require().NoError(s.store.Create(s.ctx, user))

	found, err := s.store.FindByUsername(s.ctx, "jane")
	s.Require().NoError(err)
	s.Equal("Jane Doe", found.FullName)
	s.Equal([]id.TrialID{"T1"}, found.Trials)
	s.True(user.CreatedAt.Equal(found.CreatedAt))

	s.ErrorIs(s.store.Create(s.ctx, newUser("jane")), sentinel.ErrAlreadyUsed)

	_, err = s.store.FindByUsername(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresUserStoreSuite) TestCreateFirst() {
	s.Require().NoError(s.store.CreateFirst(s.ctx, newUser("admin")))
	s.ErrorIs(s.store.CreateFirst(s.ctx, newUser("second")), sentinel.ErrConflict)
}

func (s *PostgresUserStoreSuite) TestGrantTrialIsIdempotent() {
	s.Require().NoError(s.store.Create(s.ctx, newUser("jane")))
	s.Require().NoError(s.store.GrantTrial(s.ctx, "jane", "T1"))
	s.Require().NoError(s.store.GrantTrial(s.ctx, "jane", "T2"))
	s.Require().NoError(s.store.GrantTrial(s.ctx, "jane", "T1"))

	found, err := s.store.FindByUsername(s.ctx, "jane")
	s.Require().NoError(err)
	s.Equal([]id.TrialID{"T1", "T2"}, found.Trials)

	s.ErrorIs(s.store.GrantTrial(s.ctx, "ghost", "T1"), sentinel.ErrNotFound)
}

func (s *PostgresUserStoreSuite) TestGrantRolledBackWithTransaction() {
	s.Require().NoError(s.store.Create(s.ctx, newUser("jane")))

	tx, err := s.postgres.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.GrantTrial(txcontext.WithTx(s.ctx, tx), "jane", "T1"))
	s.Require().NoError(tx.Rollback())

	found, err := s.store.FindByUsername(s.ctx, "jane")
	s.Require().NoError(err)
	s.Empty(found.Trials)
}
