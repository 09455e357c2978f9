package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"milkwms/internal/core/apperror"
	"milkwms/internal/infrastructure/metrics"
)

// Metrics records request counts and latency by route template, and counts
// requests refused with QUANTITY_EXCEEDED.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))

		if len(c.Errors) > 0 && apperror.IsCode(c.Errors.Last().Err, apperror.CodeQuantityExceeded) {
			m.ObserveQuantityExceeded(route)
		}
	}
}
