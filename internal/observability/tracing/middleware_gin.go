package tracing

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/opensmile/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var untraced = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// GinMiddleware opens a server span per request. Spans are named after the
// route template and carry only allow-listed attributes.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("opensmile/http")
	return func(c *gin.Context) {
		if untraced[c.FullPath()] {
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName(c.Request.Method + " " + route)

		status := c.Writer.Status()
		actorType, _ := obscontext.ActorFromContext(c.Request.Context())
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			attribute.String("request_id", obscontext.RequestIDFromContext(c.Request.Context())),
			attribute.String("actor_type", actorType),
			attribute.String("practice_id", c.GetString("practice_id")),
		)...)

		if status >= http.StatusInternalServerError {
			if last := c.Errors.Last(); last != nil {
				span.RecordError(SafeError(last.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
