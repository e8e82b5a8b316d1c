package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500
)

// ZerologLogger is a Gin middleware that logs requests using zerolog.
// It also puts the global logger into the request context for handlers.
func ZerologLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		method := c.Request.Method
		clientIP := c.ClientIP()

		requestLogger := log.With().Str("client_ip", clientIP).Logger()
		c.Request = c.Request.WithContext(requestLogger.WithContext(c.Request.Context()))

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()

		evt := requestLogger.Info()
		switch {
		case status >= statusErrorThreshold:
			evt = requestLogger.Error()
		case status >= statusWarnThreshold:
			evt = requestLogger.Warn()
		}

		if raw != "" {
			path = path + "?" + raw
		}

		evt.
			Int("status", status).
			Str("method", method).
			Str("path", path).
			Dur("latency", latency).
			Int("bytes", size).
			Str("user_agent", c.Request.UserAgent()).
			Msg("http request completed")
	}
}

// NewEngine builds a gin engine with recovery and request logging.
func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ZerologLogger())
	return r
}
