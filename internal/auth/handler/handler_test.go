package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"minimizer/internal/auth/handler/mocks"
	"minimizer/internal/auth/models"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	"minimizer/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type AuthHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func (s *AuthHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router, passthrough)
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerSuite))
}

func (s *AuthHandlerSuite) request(method, path string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	return httptest.NewRequest(method, path, reader)
}

func (s *AuthHandlerSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *AuthHandlerSuite) TestSetup() {
	s.service.EXPECT().Setup(gomock.Any(), models.CreateUserRequest{
		Username: "root", FullName: "Root", Password: "s3cret-password",
	}).Return(&models.User{Username: "root", FullName: "Root", Admin: true, PasswordHash: "hash"}, nil)

	rec := s.serve(s.request(http.MethodPost, "/auth/setup", map[string]string{
		"username": "root", "full_name": "Root", "password": "s3cret-password",
	}))
	s.Equal(http.StatusCreated, rec.Code)
	s.NotContains(rec.Body.String(), "hash")
}

func (s *AuthHandlerSuite) TestSetupRejectsShortPassword() {
	rec := s.serve(s.request(http.MethodPost, "/auth/setup", map[string]string{
		"username": "root", "full_name": "Root", "password": "short",
	}))
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *AuthHandlerSuite) TestLogin() {
	s.Run("issues a token", func() {
		expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		s.service.EXPECT().Login(gomock.Any(), models.LoginRequest{Username: "root", Password: "pw"}).
			Return(&models.LoginResult{AccessToken: "tok", TokenType: "Bearer", ExpiresAt: expires}, nil)

		rec := s.serve(s.request(http.MethodPost, "/auth/login", map[string]string{"username": "root", "password": "pw"}))
		s.Equal(http.StatusOK, rec.Code)
		var got models.LoginResult
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal("tok", got.AccessToken)
	})

	s.Run("bad credentials", func() {
		s.service.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid username or password"))

		rec := s.serve(s.request(http.MethodPost, "/auth/login", map[string]string{"username": "root", "password": "x"}))
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *AuthHandlerSuite) TestLogout() {
	s.service.EXPECT().Logout(gomock.Any(), "tok").Return(nil)

	req := testutil.WithActor(s.request(http.MethodPost, "/auth/logout", nil), "root")
	req.Header.Set("Authorization", "Bearer tok")
	s.Equal(http.StatusNoContent, s.serve(req).Code)
}

func (s *AuthHandlerSuite) TestAdminRoutes() {
	body := map[string]any{"username": "jane", "full_name": "Jane", "password": "another-password"}

	s.Run("non-admins are refused before the service", func() {
		req := testutil.WithActor(s.request(http.MethodPost, "/users", body), "jane")
		s.Equal(http.StatusForbidden, s.serve(req).Code)
	})

	s.Run("admin creates a user", func() {
		s.service.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(&models.User{Username: "jane"}, nil)
		req := testutil.WithAdmin(s.request(http.MethodPost, "/users", body), "root")
		s.Equal(http.StatusCreated, s.serve(req).Code)
	})

	s.Run("admin grants trial access", func() {
		s.service.EXPECT().AdminGrantTrialAccess(gomock.Any(), "jane", id.TrialID("T1")).Return(nil)
		req := testutil.WithAdmin(s.request(http.MethodPost, "/users/jane/trials/T1", nil), "root")
		s.Equal(http.StatusNoContent, s.serve(req).Code)
	})

	s.Run("grant for an unknown trial", func() {
		s.service.EXPECT().AdminGrantTrialAccess(gomock.Any(), "jane", id.TrialID("T9")).
			Return(dErrors.New(dErrors.CodeNotFound, "trial T9 not found"))
		req := testutil.WithAdmin(s.request(http.MethodPost, "/users/jane/trials/T9", nil), "root")
		s.Equal(http.StatusNotFound, s.serve(req).Code)
	})
}
