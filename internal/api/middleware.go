package api

import (
	"strconv"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// authenticate resolves the bearer token into an actor
func authenticate(verifier *auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := verifier.ActorFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			respondError(c, apperr.Unauthorized("%v", err))
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) auth.Actor {
	actor, _ := c.MustGet(actorKey).(auth.Actor)
	return actor
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
