// Package service manages operator accounts, sessions and trial access.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"minimizer/internal/auth/models"
	"minimizer/internal/auth/secrets"
	jwttoken "minimizer/internal/jwt_token"
	"minimizer/internal/platform/metrics"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/platform/sentinel"
	"minimizer/pkg/requestcontext"
)

// DefaultSessionTTL is how long a login token stays valid.
const DefaultSessionTTL = 24 * time.Hour

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	CreateFirst(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username id.Username) (*models.User, error)
	GrantTrial(ctx context.Context, username id.Username, trialID id.TrialID) error
}

type TokenIssuer interface {
	GenerateAccessToken(username id.Username, admin bool, sessionID id.SessionID, expiresIn time.Duration) (string, *jwttoken.Claims, error)
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

type RevocationList interface {
	Revoke(ctx context.Context, session models.RevokedSession) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TrialLookup fails with a not_found error when the trial does not exist.
type TrialLookup func(ctx context.Context, trialID id.TrialID) error

type Service struct {
	users      UserStore
	tokens     TokenIssuer
	revoked    RevocationList
	auditor    AuditPublisher
	trials     TrialLookup
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithTrialLookup makes admin grants check that the trial exists.
func WithTrialLookup(lookup TrialLookup) Option {
	return func(s *Service) {
		s.trials = lookup
	}
}

func New(users UserStore, tokens TokenIssuer, revoked RevocationList, auditor AuditPublisher, opts ...Option) *Service {
	s := &Service{
		users:      users,
		tokens:     tokens,
		revoked:    revoked,
		auditor:    auditor,
		sessionTTL: DefaultSessionTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup creates the first administrator. It fails once any user exists.
func (s *Service) Setup(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, err := s.newUser(ctx, req)
	if err != nil {
		return nil, err
	}
	user.Admin = true

	if err := s.users.CreateFirst(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "setup has already been completed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	if err := s.emit(ctx, "", user.Username, audit.ActionUserCreated, map[string]any{
		"username": user.Username,
		"admin":    true,
		"setup":    true,
	}); err != nil {
		return nil, err
	}
	s.userCreated(ctx, user)
	return user, nil
}

// CreateUser adds an account. Only administrators may call it.
func (s *Service) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	if !requestcontext.IsAdmin(ctx) {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin privileges required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, err := s.newUser(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("user %s already exists", user.Username))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	if err := s.emit(ctx, "", requestcontext.Actor(ctx), audit.ActionUserCreated, map[string]any{
		"username": user.Username,
		"admin":    user.Admin,
	}); err != nil {
		return nil, err
	}
	s.userCreated(ctx, user)
	return user, nil
}

func (s *Service) newUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	hash, err := secrets.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		Username:     id.Username(req.Username),
		FullName:     req.FullName,
		PasswordHash: hash,
		Admin:        req.Admin,
		CreatedAt:    requestcontext.Now(ctx).UTC(),
	}, nil
}

func (s *Service) userCreated(ctx context.Context, user *models.User) {
	s.logger.InfoContext(ctx, "user created",
		"event", audit.ActionUserCreated,
		"username", user.Username,
		"admin", user.Admin,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
}

// Login checks the password and issues a bearer token with a fresh session id.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	username := id.Username(req.Username)
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		s.security(ctx, username, audit.ActionLoginFailed)
		return nil, invalid
	}
	if err := secrets.Verify(req.Password, user.PasswordHash); err != nil {
		s.security(ctx, username, audit.ActionLoginFailed)
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	token, claims, err := s.tokens.GenerateAccessToken(user.Username, user.Admin, id.SessionID(uuid.New()), s.sessionTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.security(ctx, username, audit.ActionLogin)
	return &models.LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the token until it would have expired.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	if !claims.ExpiresAt.After(now) {
		return nil
	}
	sessionID, _ := uuid.Parse(claims.SessionID)
	session := models.RevokedSession{
		JTI:       claims.ID,
		SessionID: id.SessionID(sessionID),
		Username:  id.Username(claims.Username),
		RevokedAt: now,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.revoked.Revoke(ctx, session); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	s.security(ctx, id.Username(claims.Username), audit.ActionLogout)
	return nil
}

// IsTokenRevoked backs the RequireAuth revocation check.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.revoked.IsRevoked(ctx, jti)
}

// GrantTrialAccess adds the trial to the user's access list. Inside a trial
// transaction the grant and its audit record commit with the trial.
func (s *Service) GrantTrialAccess(ctx context.Context, username id.Username, trialID id.TrialID) error {
	if err := s.users.GrantTrial(ctx, username, trialID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("user %s not found", username))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant trial access")
	}
	return s.emit(ctx, trialID, requestcontext.Actor(ctx), audit.ActionAccessGranted, map[string]any{
		"username": username,
	})
}

// AdminGrantTrialAccess is the admin endpoint's grant: it checks the caller
// and the trial before granting.
func (s *Service) AdminGrantTrialAccess(ctx context.Context, rawUsername string, trialID id.TrialID) error {
	if !requestcontext.IsAdmin(ctx) {
		return dErrors.New(dErrors.CodeForbidden, "admin privileges required")
	}
	username, err := id.ParseUsername(rawUsername)
	if err != nil {
		return err
	}
	if s.trials != nil {
		if err := s.trials(ctx, trialID); err != nil {
			return err
		}
	}
	if err := s.GrantTrialAccess(ctx, username, trialID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "trial access granted",
		"event", audit.ActionAccessGranted,
		"username", username,
		"trial_id", trialID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// HasTrialAccess reports whether the user may act on the trial. Admins always
// may; unknown users may not.
func (s *Service) HasTrialAccess(ctx context.Context, username id.Username, trialID id.TrialID) (bool, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.CanAccess(trialID), nil
}

func (s *Service) emit(ctx context.Context, trialID id.TrialID, actor id.Username, action audit.Action, data any) error {
	event, err := audit.NewEvent(trialID, action, actor, requestcontext.RequestID(ctx), requestcontext.Now(ctx), data)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode audit event")
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

// security records authentication outcomes. A failed write is logged and
// does not change the outcome.
func (s *Service) security(ctx context.Context, username id.Username, action audit.Action) {
	if err := s.emit(ctx, "", username, action, nil); err != nil {
		s.logger.ErrorContext(ctx, "failed to record security event",
			"event", action,
			"username", username,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
