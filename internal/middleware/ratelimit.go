package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/pkg/metrics"
	"github.com/heartapi/heartgate/internal/ratelimit"
)

// GlobalRateLimit is the first admission stage: one token from the shared
// bucket per request, fail fast with 429 when the bucket is dry.
func GlobalRateLimit(bucket *ratelimit.TokenBucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !bucket.TryAcquire(1) {
			metrics.AdmissionTotal.WithLabelValues("rate_limited").Inc()
			c.Error(apperrors.New(apperrors.ErrRateLimited, "too many requests", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
