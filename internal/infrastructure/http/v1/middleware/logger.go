package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"milkwms/internal/core/apperror"
	"milkwms/pkg/logger"
)

// Logger writes one access line per request; 4xx responses log at warn with their error code.
// Handlers and services below it log through log via the request context.
func Logger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			if appErr, ok := apperror.AsAppError(err); ok {
				fields = append(fields, "code", appErr.Code)
			}
			fields = append(fields, "error", err.Error())
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Errorw("http request", fields...)
		case status >= 400:
			l.Warnw("http request", fields...)
		default:
			l.Infow("http request", fields...)
		}
	}
}
