package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"minimizer/internal/auth/models"
	"minimizer/internal/auth/store/revocation"
	"minimizer/internal/auth/store/user"
	jwttoken "minimizer/internal/jwt_token"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/platform/audit/publisher"
	auditmemory "minimizer/pkg/platform/audit/store/memory"
	"minimizer/pkg/requestcontext"
)

type AuthServiceSuite struct {
	suite.Suite
	ctx      context.Context
	users    *user.InMemoryUserStore
	auditLog *auditmemory.InMemoryStore
	service  *Service
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.users = user.New()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.service = New(
		s.users,
		jwttoken.NewJWTService("test-key", "minimizer", "minimizer-api"),
		revocation.NewInMemory(),
		publisher.New(s.auditLog),
		WithSessionTTL(time.Hour),
	)
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) admin() context.Context {
	return requestcontext.WithAdmin(requestcontext.WithActor(s.ctx, "root"), true)
}

func (s *AuthServiceSuite) setup() {
	_, err := s.service.Setup(s.ctx, models.CreateUserRequest{
		Username: "root", FullName: "Root Admin", Password: "s3cret-password",
	})
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) actions() []audit.Action {
	events, err := s.auditLog.ListAll(s.ctx)
	s.Require().NoError(err)
	out := make([]audit.Action, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

func (s *AuthServiceSuite) TestSetup() {
	s.Run("first user becomes admin", func() {
		u, err := s.service.Setup(s.ctx, models.CreateUserRequest{
			Username: " root ", FullName: "Root Admin", Password: "s3cret-password",
		})
		s.Require().NoError(err)
		s.Equal(id.Username("root"), u.Username)
		s.True(u.Admin)
		s.NotEqual("s3cret-password", u.PasswordHash)
	})

	s.Run("second setup conflicts", func() {
		_, err := s.service.Setup(s.ctx, models.CreateUserRequest{
			Username: "other", FullName: "Other", Password: "s3cret-password",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *AuthServiceSuite) TestCreateUser() {
	s.setup()
	req := models.CreateUserRequest{Username: "jane", FullName: "Jane Doe", Password: "another-password"}

	s.Run("non-admins are refused", func() {
		_, err := s.service.CreateUser(requestcontext.WithActor(s.ctx, "jane"), req)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin creates user", func() {
		u, err := s.service.CreateUser(s.admin(), req)
		s.Require().NoError(err)
		s.False(u.Admin)
	})

	s.Run("duplicate username conflicts", func() {
		_, err := s.service.CreateUser(s.admin(), req)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Equal([]audit.Action{audit.ActionUserCreated, audit.ActionUserCreated}, s.actions())
}

func (s *AuthServiceSuite) TestLoginAndLogout() {
	s.setup()

	s.Run("wrong password", func() {
		_, err := s.service.Login(s.ctx, models.LoginRequest{Username: "root", Password: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown user looks the same", func() {
		_, err := s.service.Login(s.ctx, models.LoginRequest{Username: "ghost", Password: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("login then logout revokes the token", func() {
		res, err := s.service.Login(s.ctx, models.LoginRequest{Username: "root", Password: "s3cret-password"})
		s.Require().NoError(err)
		s.Equal("Bearer", res.TokenType)
		s.WithinDuration(time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)

		claims, err := s.service.tokens.ValidateToken(res.AccessToken)
		s.Require().NoError(err)
		revoked, err := s.service.IsTokenRevoked(s.ctx, claims.ID)
		s.Require().NoError(err)
		s.False(revoked)

		s.Require().NoError(s.service.Logout(s.ctx, res.AccessToken))
		revoked, err = s.service.IsTokenRevoked(s.ctx, claims.ID)
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Equal([]audit.Action{
		audit.ActionUserCreated,
		audit.ActionLoginFailed,
		audit.ActionLoginFailed,
		audit.ActionLogin,
		audit.ActionLogout,
	}, s.actions())
}

func (s *AuthServiceSuite) TestTrialAccess() {
	s.setup()
	_, err := s.service.CreateUser(s.admin(), models.CreateUserRequest{
		Username: "jane", FullName: "Jane Doe", Password: "another-password",
	})
	s.Require().NoError(err)

	ok, err := s.service.HasTrialAccess(s.ctx, "jane", "T1")
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.service.HasTrialAccess(s.ctx, "root", "T1")
	s.Require().NoError(err)
	s.True(ok, "admins reach every trial")

	s.Require().NoError(s.service.AdminGrantTrialAccess(s.admin(), "jane", "T1"))
	ok, err = s.service.HasTrialAccess(s.ctx, "jane", "T1")
	s.Require().NoError(err)
	s.True(ok)

	err = s.service.AdminGrantTrialAccess(requestcontext.WithActor(s.ctx, "jane"), "jane", "T2")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.service.AdminGrantTrialAccess(s.admin(), "ghost", "T1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	ok, err = s.service.HasTrialAccess(s.ctx, "ghost", "T1")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *AuthServiceSuite) TestAdminGrantChecksTrialExists() {
	s.setup()
	s.service.trials = func(_ context.Context, trialID id.TrialID) error {
		return dErrors.New(dErrors.CodeNotFound, "trial "+trialID.String()+" not found")
	}
	err := s.service.AdminGrantTrialAccess(s.admin(), "root", "T9")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
