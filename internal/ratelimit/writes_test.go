package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/comanda/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGuardWithoutRedisAllowsEverything(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, ActorWriteRate: 1, ActorWriteBurst: 1}}
	g := NewGuard(cfg, nil, zap.NewNop())

	assert.False(t, g.WritesLimited())
	for i := 0; i < 5; i++ {
		assert.True(t, g.AllowWrite(context.Background(), "w-1").Allowed)
	}

	called := false
	err := g.WithShiftLock(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestGuardPropagatesLockedError(t *testing.T) {
	g := NewGuard(config.Config{}, nil, zap.NewNop())
	boom := errors.New("boom")

	err := g.WithShiftLock(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestNilLockerRunsUnguarded(t *testing.T) {
	var l *Locker
	ran := false
	require.NoError(t, l.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(true, 0, 5))
	assert.Equal(t, 200*time.Millisecond, retryAfter(false, 0, 5))
	assert.Equal(t, 100*time.Millisecond, retryAfter(false, 0.5, 5))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 8*time.Second, bucketTTL(5, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}

func TestToNumberConversions(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(7), toInt("7"))
	assert.Equal(t, 0.75, toFloat("0.75"))
	assert.Equal(t, float64(3), toFloat(int64(3)))
	assert.Equal(t, float64(0), toFloat(nil))
}
