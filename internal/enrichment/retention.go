package enrichment

import (
	"context"
	"time"

	"github.com/smallbiznis/opensmile/internal/audit/redact"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	"gorm.io/gorm"
)

// Retention clears call recording links once they age out. It runs across
// every practice as a system job.
type Retention struct {
	db    *gorm.DB
	audit *redact.Logger
}

func NewRetention(db *gorm.DB, audit *redact.Logger) *Retention {
	return &Retention{db: db, audit: audit}
}

func (r *Retention) Enforce(ctx context.Context, now time.Time, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Model(&interactiondomain.Interaction{}).
		Where("call_recording_url IS NOT NULL AND created_at < ?", cutoff).
		Update("call_recording_url", nil)
	if res.Error != nil {
		return 0, res.Error
	}
	r.audit.Log(ctx, "dataRetention:complete", map[string]any{"count": res.RowsAffected})
	return res.RowsAffected, nil
}
