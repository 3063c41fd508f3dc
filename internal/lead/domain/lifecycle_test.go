package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransitionFieldsSetsTimestampsOnce(t *testing.T) {
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := created.Add(90 * time.Second)
	lead := &Lead{Status: StatusNew, CreatedAt: created}

	fields := TransitionFields(lead, StatusContacted, now, nil)
	assert.Equal(t, now, fields["first_contact_at"])
	assert.Equal(t, int64(90_000), fields["speed_to_first_contact_ms"])

	lead.FirstContactAt = &now
	fields = TransitionFields(lead, StatusContacted, now.Add(time.Hour), nil)
	assert.NotContains(t, fields, "first_contact_at")
	assert.Equal(t, StatusContacted, fields["status"])
}

func TestTransitionFieldsPromotionOnlyFromEnquiry(t *testing.T) {
	now := time.Now().UTC()

	fields := TransitionFields(&Lead{Status: StatusEnquiry}, StatusNew, now, nil)
	assert.Contains(t, fields, "promoted_to_lead_at")

	fields = TransitionFields(&Lead{Status: StatusContacted}, StatusNew, now, nil)
	assert.NotContains(t, fields, "promoted_to_lead_at")
}

func TestTransitionFieldsLost(t *testing.T) {
	now := time.Now().UTC()
	reason := LostReasonPrice

	fields := TransitionFields(&Lead{Status: StatusQualified}, StatusLost, now, &reason)
	assert.Equal(t, now, fields["lost_at"])
	assert.Equal(t, LostReasonPrice, fields["lost_reason"])
}

func TestMergeUnique(t *testing.T) {
	got := MergeUnique([]string{"cost", "time off work"}, []string{"cost", "", "pain", "pain"})
	assert.Equal(t, []string{"cost", "time off work", "pain"}, got)
	assert.Equal(t, []string{}, MergeUnique(nil, nil))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("QUALIFIED")
	assert.NoError(t, err)
	assert.Equal(t, StatusQualified, s)

	_, err = ParseStatus("qualified")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
