package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"minimizer/pkg/platform/middleware/metadata"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

type MiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
	clock  *fakeClock
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.clock = &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *MiddlewareSuite) handler(l *Limiter) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return metadata.ClientMetadata(l.Middleware(ok))
}

func (s *MiddlewareSuite) call(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = ip + ":5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s *MiddlewareSuite) TestRejectsOverLimit() {
	l := New(NewInMemoryStore(WithClock(s.clock.now)), "login", 2, time.Minute, s.logger)
	l.now = s.clock.now
	h := s.handler(l)

	s.Equal(http.StatusNoContent, s.call(h, "10.0.0.1").Code)
	rec := s.call(h, "10.0.0.1")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("2", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = s.call(h, "10.0.0.1")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("60", rec.Header().Get("Retry-After"))
	s.JSONEq(`{"error":"rate_limit_exceeded","error_description":"too many requests, try again later"}`, rec.Body.String())

	s.Equal(http.StatusNoContent, s.call(h, "10.0.0.2").Code)
}

func (s *MiddlewareSuite) TestFailsOpen() {
	h := s.handler(New(failingStore{}, "login", 1, time.Minute, s.logger))
	s.Equal(http.StatusNoContent, s.call(h, "10.0.0.1").Code)
	s.Equal(http.StatusNoContent, s.call(h, "10.0.0.1").Code)
}

func (s *MiddlewareSuite) TestDisabledWithoutLimit() {
	h := s.handler(New(failingStore{}, "login", 0, time.Minute, s.logger))
	rec := s.call(h, "10.0.0.1")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(rec.Header().Get("X-RateLimit-Limit"))
}
