// Package domain contains core types for the auth service.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is closed: every switch over it must name all four values.
type Role string

const (
	RoleAdmin         Role = "ADMIN"
	RoleSalesperson   Role = "SALESPERSON"
	RolePracticeOwner Role = "PRACTICE_OWNER"
	RolePracticeStaff Role = "PRACTICE_STAFF"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RoleAdmin, RoleSalesperson, RolePracticeOwner, RolePracticeStaff:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// IsPracticeBound reports roles whose visibility is their own practice.
func (r Role) IsPracticeBound() bool {
	return r == RolePracticeOwner || r == RolePracticeStaff
}

// User represents a system user account.
type User struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email               string        `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	FullName            string        `gorm:"column:full_name;type:text;not null" json:"fullName"`
	Role                Role          `gorm:"column:role;type:text;not null" json:"role"`
	PracticeID          *snowflake.ID `gorm:"column:practice_id;index" json:"practiceId,omitempty"`
	PasswordHash        *string       `gorm:"type:text" json:"-"`
	MustChangePassword  bool          `gorm:"column:must_change_password;not null;default:false" json:"mustChangePassword"`
	LastPasswordChanged *time.Time    `gorm:"column:last_password_changed" json:"-"`
	CreatedAt           time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt           time.Time     `gorm:"not null" json:"updatedAt"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session represents a persisted login session.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// Principal is an authenticated session together with its user row.
type Principal struct {
	Session *Session
	User    *User
}

type userKey struct{}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey{}).(*User)
	return user, ok && user != nil
}
