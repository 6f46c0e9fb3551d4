package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"minimizer/internal/platform/config"
)

func TestNewAppliesConfiguredTimeouts(t *testing.T) {
	handler := http.NewServeMux()
	srv := New(":9090", handler, config.HTTPConfig{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       2 * time.Second,
		WriteTimeout:      3 * time.Second,
		IdleTimeout:       4 * time.Second,
	})

	assert.Equal(t, ":9090", srv.Addr)
	assert.Same(t, handler, srv.Handler)
	assert.Equal(t, time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 2*time.Second, srv.ReadTimeout)
	assert.Equal(t, 3*time.Second, srv.WriteTimeout)
	assert.Equal(t, 4*time.Second, srv.IdleTimeout)
}
