package domain

import "errors"

var (
	ErrLeadNotFound      = errors.New("lead_not_found")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidSource     = errors.New("invalid_source")
	ErrInvalidUrgency    = errors.New("invalid_urgency")
	ErrInvalidLostReason = errors.New("invalid_lost_reason")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidPractice   = errors.New("invalid_practice")
)
