package domain

import "errors"

var (
	ErrInvalidCredentials        = errors.New("invalid_credentials")
	ErrMustChangePassword        = errors.New("password_change_required")
	ErrUserNotFound              = errors.New("user_not_found")
	ErrUserExists                = errors.New("user_already_exists")
	ErrSessionNotFound           = errors.New("session_not_found")
	ErrSessionExpired            = errors.New("session_expired")
	ErrSessionRevoked            = errors.New("session_revoked")
	ErrInvalidSession            = errors.New("invalid_session")
	ErrInvalidEmail              = errors.New("invalid_email")
	ErrInvalidRole               = errors.New("invalid_role")
	ErrInvalidFullName           = errors.New("invalid_full_name")
	ErrWeakPassword              = errors.New("weak_password")
	ErrSelfRegistrationForbidden = errors.New("self_registration_forbidden")
)
