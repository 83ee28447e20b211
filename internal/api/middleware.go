package api

import (
	"log/slog"
	"net/http"
	"time"

	"intizar/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	actionKey       = "action"
	outcomeKey      = "outcome"
)

// RequestID propagates X-Request-ID or mints one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog writes one structured line per request and counts it.
func AccessLog(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		action := c.GetString(actionKey)
		outcome := c.GetString(outcomeKey)
		if outcome == "" {
			outcome = "none"
		}
		slog.Info("request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"action", action,
			"status", c.Writer.Status(),
			"outcome", outcome,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		if metrics != nil && action != "" {
			metrics.HTTPRequests.WithLabelValues(c.Request.Method, action, outcome).Inc()
		}
	}
}

// Recovery turns a panic into the standard failure envelope.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("handler panicked", "request_id", c.GetString(requestIDKey), "panic", recovered)
		c.Set(outcomeKey, "error")
		c.AbortWithStatusJSON(http.StatusOK, gin.H{"success": false, "error": MsgInternal})
	})
}

// CORS lets the static site call the API from another origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
