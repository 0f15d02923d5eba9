package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
)

const actorKey = "actor"

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)

		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Error()
		} else if status >= http.StatusBadRequest {
			ev = logger.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("error", c.Errors.String())
		}
		ev.Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http: request")
	}
}

// authenticate resolves the bearer token into an actor. Requests without a
// token are rejected.
func authenticate(tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			writeError(c, domain.ErrUnauthenticated)
			c.Abort()
			return
		}
		actor, err := tokens.Parse(header)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) auth.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(auth.Actor); ok {
			return a
		}
	}
	return auth.Actor{}
}

func rateLimit(l *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate_limited", "rate limit exceeded"))
			return
		}
		c.Next()
	}
}
