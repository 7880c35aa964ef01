// Package middleware holds the gin middleware shared by the agent and the
// stub remote server.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ahmed11551/namazpro24/internal/logging"
)

// Logger logs one line per request with the shared JSON logger.
func Logger(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"component":  component,
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case status >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last
			}
			logging.Error("request failed", err, fields)
		case status >= 400:
			logging.Warn("request error", fields)
		default:
			logging.Debug("request", fields)
		}
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logging.Error("panic recovered", nil, map[string]interface{}{
					"component": component,
					"panic":     err,
					"method":    c.Request.Method,
					"path":      c.Request.URL.Path,
					"stack":     string(debug.Stack()),
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// NewEngine returns a gin engine with tracing (when a service name is given),
// recovery and request logging installed in that order.
func NewEngine(component, traceServiceName string) *gin.Engine {
	router := gin.New()
	if traceServiceName != "" {
		router.Use(otelgin.Middleware(traceServiceName))
	}
	router.Use(Recovery(component))
	router.Use(Logger(component))
	return router
}
