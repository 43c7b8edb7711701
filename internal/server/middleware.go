package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/actor"
	obscontext "github.com/smallbiznis/comanda/internal/observability/context"
	"github.com/smallbiznis/comanda/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"

	contextActorKey = "actor"
)

// ActorRequired reads the identity headers set by the upstream identity
// service. Nothing is verified here.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := actor.New(c.GetHeader(HeaderActorID), c.GetHeader(HeaderActorRole), c.GetHeader(HeaderActorName))
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextActorKey, a)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), string(a.Role), a.ID))
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (actor.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return actor.Actor{}, false
	}
	a, ok := value.(actor.Actor)
	return a, ok
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), a, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// WriteRateLimit spends one token of the actor's write bucket.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.guard.WritesLimited() {
			c.Next()
			return
		}
		a, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		res := s.guard.AllowWrite(c.Request.Context(), a.ID)
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
		}
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		logger.WithContext(c.Request.Context(), s.log).Warn("write rate limit exceeded",
			zap.String("route", normalizeRoute(c)),
			zap.Int("retry_after_seconds", retryAfter),
		)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		AbortWithError(c, ErrRateLimited)
	}
}

func normalizeRoute(c *gin.Context) string {
	route := strings.TrimSpace(c.FullPath())
	if route == "" {
		route = strings.TrimSpace(c.Request.URL.Path)
	}
	if route == "" {
		route = "unknown"
	}
	return route
}
