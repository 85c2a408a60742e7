package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	assert.Equal(t, 5, limiter.defaultBurst)

	l2 := NewLimiter(10, -1)
	assert.Equal(t, 5, l2.defaultBurst)
}

func TestLimiter_ScopesAreIndependent(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	require.NoError(t, limiter.Wait(context.Background(), "org-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "org-a"))
	assert.NoError(t, limiter.Wait(context.Background(), "org-b"))
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(ctx, "org"))
	}
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	require.NoError(t, limiter.Wait(context.Background(), "org"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "org"))
}
