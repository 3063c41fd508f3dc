package domain

import (
	"time"
)

// WriteOnceColumns keep the first value ever written to them.
var WriteOnceColumns = []string{
	"promoted_to_lead_at",
	"first_contact_at",
	"speed_to_first_contact_ms",
	"qualified_at",
	"appointment_booked_at",
	"lost_at",
	"lost_reason",
}

// TransitionFields returns the column updates for moving lead into next.
// Each lifecycle timestamp is only written when it is still unset.
func TransitionFields(lead *Lead, next Status, now time.Time, reason *LostReason) map[string]any {
	fields := map[string]any{
		"status":     next,
		"updated_at": now,
	}

	switch next {
	case StatusNew:
		if lead.Status == StatusEnquiry && lead.PromotedToLeadAt == nil {
			fields["promoted_to_lead_at"] = now
		}
	case StatusContacted:
		for k, v := range FirstContactFields(lead, now) {
			fields[k] = v
		}
	case StatusQualified:
		if lead.QualifiedAt == nil {
			fields["qualified_at"] = now
		}
	case StatusAppointmentBooked:
		if lead.AppointmentBookedAt == nil {
			fields["appointment_booked_at"] = now
		}
	case StatusLost:
		if lead.LostAt == nil {
			fields["lost_at"] = now
		}
		if reason != nil && lead.LostReason == nil {
			fields["lost_reason"] = *reason
		}
	case StatusEnquiry, StatusNurturing, StatusConsultationCompleted,
		StatusTreatmentStarted, StatusUnqualified:
	}
	return fields
}

// FirstContactFields records the first outbound contact and how long it took.
func FirstContactFields(lead *Lead, now time.Time) map[string]any {
	if lead.FirstContactAt != nil {
		return nil
	}
	speed := now.Sub(lead.CreatedAt).Milliseconds()
	if speed < 0 {
		speed = 0
	}
	return map[string]any{
		"first_contact_at":          now,
		"speed_to_first_contact_ms": speed,
	}
}

// MergeUnique appends additions to existing, skipping blanks and values
// already present. Existing order is kept.
func MergeUnique(existing []string, additions []string) []string {
	out := make([]string, 0, len(existing)+len(additions))
	seen := make(map[string]struct{}, len(existing)+len(additions))
	for _, v := range append(append([]string{}, existing...), additions...) {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
