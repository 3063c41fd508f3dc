package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
	ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error
	CheckMustChangePassword(ctx context.Context) (bool, error)
	ClearMustChangePassword(ctx context.Context) error
	CurrentUser(ctx context.Context) (*User, error)
}

// RegisterRequest is the public sign-up form.
type RegisterRequest struct {
	Email        string
	Password     string
	FullName     string
	Role         string
	PracticeName string
}

type RegisterResult struct {
	UserID     snowflake.ID  `json:"userId"`
	PracticeID *snowflake.ID `json:"practiceId"`
}

// CreateUserRequest provisions an account directly; used by seeding.
type CreateUserRequest struct {
	Email              string
	Password           string
	FullName           string
	Role               Role
	PracticeID         *snowflake.ID
	MustChangePassword bool
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User      *User
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
}
