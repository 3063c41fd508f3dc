package domain

import (
	"errors"

	"github.com/smallbiznis/opensmile/internal/contact"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
)

var (
	ErrPayloadTooLarge  = errors.New("payload_too_large")
	ErrMissingSignature = errors.New("missing_signature")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventNotFound    = errors.New("webhook_event_not_found")
	ErrDuplicateEvent   = errors.New("duplicate_webhook_event")

	ErrInvalidPhone     = contact.ErrInvalidPhone
	ErrInvalidEmail     = contact.ErrInvalidEmail
	ErrCampaignNotFound = practicedomain.ErrCampaignNotFound
)
