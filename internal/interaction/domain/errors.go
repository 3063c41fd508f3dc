package domain

import "errors"

var (
	ErrInteractionNotFound = errors.New("interaction_not_found")
	ErrInvalidType         = errors.New("invalid_interaction_type")
)
