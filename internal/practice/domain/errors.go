package domain

import "errors"

var (
	ErrPracticeNotFound = errors.New("practice_not_found")
	ErrCampaignNotFound = errors.New("campaign_not_found")
	ErrInvalidName      = errors.New("invalid_practice_name")
)
