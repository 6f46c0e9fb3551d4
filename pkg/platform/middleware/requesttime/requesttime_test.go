package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"minimizer/pkg/requestcontext"
)

func TestMiddlewareFixesNowForRequest(t *testing.T) {
	var first, second time.Time
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, first.IsZero())
	assert.Equal(t, first, second)
	assert.Equal(t, time.UTC, first.Location())
}

func TestWithClockTruncatesToStoragePrecision(t *testing.T) {
	local := time.FixedZone("CET", 3600)
	clock := func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 123456789, local) }

	var got time.Time
	h := WithClock(clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, time.Date(2026, 4, 2, 9, 0, 0, 123456000, time.UTC), got)
}
