package redact

import (
	"context"
	"fmt"

	obslogger "github.com/smallbiznis/opensmile/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("audit.redact",
	fx.Provide(NewLogger),
)

// Logger emits one structured line per domain event with a redacted payload.
type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit")}
}

func (l *Logger) Log(ctx context.Context, event string, payload any) {
	if l == nil {
		return
	}
	obslogger.WithContext(ctx, l.log).Info(event, zap.Any("data", Redact(payload)))
}

// Error logs the error's type only; error strings from drivers and
// collaborators can echo row values.
func (l *Logger) Error(ctx context.Context, event string, err error, payload any) {
	if l == nil {
		return
	}
	obslogger.WithContext(ctx, l.log).Warn(event,
		zap.String("error_type", fmt.Sprintf("%T", err)),
		zap.Any("data", Redact(payload)),
	)
}
