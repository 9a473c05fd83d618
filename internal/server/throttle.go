package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

// throttleReminders spends one token per manual send from the caller's
// budget. Batch requests cost one token regardless of size.
func (s *Server) throttleReminders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.reminderLimiter.Enabled() {
			c.Next()
			return
		}

		res := s.reminderLimiter.Allow(c.Request.Context(), currentActor(c).subject())
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
