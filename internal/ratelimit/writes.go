package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/comanda/internal/config"
	"go.uber.org/zap"
)

const (
	keyActorWrites = "comanda:writes:actor:%s"
	keyShiftClose  = "comanda:closing:shift"
)

// Guard bundles the per-actor write bucket and the shift-closing lock.
// A nil or disabled Guard allows everything.
type Guard struct {
	log    *zap.Logger
	bucket *TokenBucket
	locker *Locker

	limitWrites bool
	rate        float64
	burst       int
	closingTTL  time.Duration
}

func NewGuard(cfg config.Config, client *redis.Client, log *zap.Logger) *Guard {
	g := &Guard{
		log:        log.Named("ratelimit"),
		closingTTL: cfg.RateLimit.ClosingLockTTL,
	}
	if g.closingTTL <= 0 {
		g.closingTTL = 30 * time.Second
	}
	if client == nil {
		return g
	}
	g.locker = NewLocker(client)
	if cfg.RateLimit.Enabled && cfg.RateLimit.ActorWriteRate > 0 && cfg.RateLimit.ActorWriteBurst > 0 {
		g.bucket = NewTokenBucket(client)
		g.limitWrites = true
		g.rate = cfg.RateLimit.ActorWriteRate
		g.burst = cfg.RateLimit.ActorWriteBurst
	}
	return g
}

func (g *Guard) WritesLimited() bool {
	return g != nil && g.limitWrites
}

// AllowWrite consumes one token for actorID. Redis failures fail open.
func (g *Guard) AllowWrite(ctx context.Context, actorID string) Result {
	if !g.WritesLimited() {
		return Result{Allowed: true}
	}
	res, err := g.bucket.Allow(ctx, fmt.Sprintf(keyActorWrites, strings.TrimSpace(actorID)), g.rate, g.burst)
	if err != nil {
		g.log.Warn("write rate limit check failed", zap.String("actor_id", actorID), zap.Error(err))
		return Result{Allowed: true}
	}
	return *res
}

// WithShiftLock serialises shift closings across instances when redis is
// configured. ErrLockHeld means another closing is in progress.
func (g *Guard) WithShiftLock(ctx context.Context, fn func(context.Context) error) error {
	if g == nil || g.locker == nil {
		return fn(ctx)
	}
	return g.locker.WithLock(ctx, keyShiftClose, g.closingTTL, fn)
}
