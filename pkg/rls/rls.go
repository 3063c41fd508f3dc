package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithPractice binds the current transaction to one practice for row level security policies.
func WithPractice(tx *gorm.DB, practiceID int64) error {
	return tx.Exec(
		"SELECT set_config('app.current_practice_id', ?, true)",
		fmt.Sprintf("%d", practiceID),
	).Error
}
