package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/heartapi/heartgate/internal/pkg/metrics"
)

// Metrics counts requests per route template and status. Uses FullPath so
// the wildcard invoke route stays one series instead of one per upstream
// path.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
