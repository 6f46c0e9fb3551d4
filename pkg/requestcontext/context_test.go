package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessorsDefaultToZeroValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Actor(ctx))
	assert.False(t, IsAdmin(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.True(t, SessionID(ctx).IsNil())
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	ctx = WithActor(ctx, "alice")
	ctx = WithAdmin(ctx, true)
	ctx = WithRequestID(ctx, "req-42")

	assert.Equal(t, fixed, Now(ctx))
	assert.Equal(t, "alice", Actor(ctx).String())
	assert.True(t, IsAdmin(ctx))
	assert.Equal(t, "req-42", RequestID(ctx))
}
