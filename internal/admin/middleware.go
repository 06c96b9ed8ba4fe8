package admin

import (
	"net/http"
	"time"

	"github.com/danmuck/nmead/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// requestLogger logs each admin request alongside the sentence server state
// it was answered from.
func requestLogger(logger zerolog.Logger, src Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		switch {
		case status == http.StatusUnauthorized:
			event = logger.Warn().Bool("denied", true)
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("route", routeOf(c, c.Request.URL.Path)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Bool("server_started", src.Started()).
			Int64("active_conns", src.ActiveConnections()).
			Int("handlers", src.Registry().Len()).
			Msg("nmea.admin request")
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		observability.RecordHTTPRequest(c.Request.Method, routeOf(c, "unmatched"), c.Writer.Status(), time.Since(start))
	}
}

// routeOf keeps the metric label set bounded to registered routes.
func routeOf(c *gin.Context, fallback string) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return fallback
}
