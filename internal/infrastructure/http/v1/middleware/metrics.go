package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"medstock/internal/infrastructure/metrics"
)

// Metrics middleware records request counts and latency per route.
func Metrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Observe(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
