package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/opensmile/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware writes one http_request line per request. Only the route
// template is logged: raw paths and query strings carry lead ids and search
// terms typed by staff.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if practiceID := c.GetString("practice_id"); practiceID != "" {
			fields = append(fields, zap.String("practice_id", practiceID))
		}
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(last.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
		}
		if cfg.Debug && status >= http.StatusInternalServerError {
			fields = append(fields, zap.Stack("stack"))
		}

		log := FromContext(c.Request.Context())
		if ce := log.Check(requestLevel(route, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case route == "/metrics" || route == "/health":
		return zapcore.DebugLevel
	case strings.HasPrefix(route, "/api/webhooks/") && status >= http.StatusBadRequest:
		// Provider retries and probes; the ingestion pipeline logs its own outcome.
		return zapcore.DebugLevel
	case status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}
