package domain

import "errors"

var (
	ErrAppointmentNotFound       = errors.New("appointment_not_found")
	ErrOutcomeAlreadyRecorded    = errors.New("outcome_already_recorded")
	ErrInvalidStatus             = errors.New("invalid_appointment_status")
	ErrInvalidKind               = errors.New("invalid_appointment_type")
	ErrInvalidConfirmationSource = errors.New("invalid_confirmation_source")
	ErrInvalidSchedule           = errors.New("invalid_scheduled_at")
	ErrInvalidDateRange          = errors.New("invalid_date_range")
	ErrTreatmentTypeMismatch     = errors.New("treatment_type_not_in_practice")
)
