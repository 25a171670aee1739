package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directory/internal/observability/logger"
	"github.com/smallbiznis/directory/internal/principal"
	"go.uber.org/zap"
)

// WriteRateLimit throttles profile writes per authenticated owner. Anonymous
// requests pass through and are rejected by the service.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		ownerID, ok := principal.UserIDFromContext(ctx)
		if !ok {
			c.Next()
			return
		}

		res, err := s.writeLimiter.AllowOwner(ctx, ownerID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("profile write rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
