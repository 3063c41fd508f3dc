package assistant

import (
	"context"
	"testing"

	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	leadsvc "github.com/smallbiznis/opensmile/internal/lead/service"
	"github.com/smallbiznis/opensmile/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendationPlaybook(t *testing.T) {
	cases := map[leaddomain.Status]interactiondomain.Type{
		leaddomain.StatusEnquiry:           interactiondomain.TypeCallOutbound,
		leaddomain.StatusNew:               interactiondomain.TypeCallOutbound,
		leaddomain.StatusContacted:         interactiondomain.TypeEmailSent,
		leaddomain.StatusQualified:         interactiondomain.TypeCallOutbound,
		leaddomain.StatusNurturing:         interactiondomain.TypeSMSSent,
		leaddomain.StatusAppointmentBooked: interactiondomain.TypeNote,
		leaddomain.StatusLost:              interactiondomain.TypeNote,
	}
	for status, want := range cases {
		assert.Equal(t, want, recommendation(status).action, status)
	}
	assert.Empty(t, recommendation(leaddomain.StatusLost).script)
}

func TestNextBestAction(t *testing.T) {
	env := testkit.New(t)
	sales := env.User(t, authdomain.RoleSalesperson, 0)
	practice := env.Practice(t, "Bright Smiles", sales)
	leads := leadsvc.New(leadsvc.Params{
		DB:      env.DB,
		Log:     env.Log,
		Audit:   env.Audit,
		GenID:   env.Node,
		Clock:   env.Clock,
		Policy:  env.Policy,
		Gateway: env.Gateway,
	})
	svc := New(Params{DB: env.DB, Log: env.Log, Policy: env.Policy, Leads: leads, Scorer: NewStubScorer()})
	ctx := context.Background()

	lead, err := leads.Create(ctx, sales, leaddomain.CreateLeadRequest{
		PracticeID: practice.ID,
		Name:       "Jo March",
		Email:      "jo@example.com",
		Notes:      "called from the website form",
	})
	require.NoError(t, err)

	rec, err := svc.NextBestAction(ctx, sales, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, interactiondomain.TypeCallOutbound, rec.Action)
	assert.Equal(t, leaddomain.StatusNew, rec.LeadStatus)
	assert.Equal(t, 1, rec.InteractionCount)
	assert.InDelta(t, 0.85, rec.Confidence, 1e-9)

	outsider := env.User(t, authdomain.RolePracticeOwner, env.Node.Generate())
	_, err = svc.NextBestAction(ctx, outsider, lead.ID)
	assert.ErrorIs(t, err, leaddomain.ErrLeadNotFound)
}

func TestSentiment(t *testing.T) {
	env := testkit.New(t)
	sales := env.User(t, authdomain.RoleSalesperson, 0)
	svc := New(Params{DB: env.DB, Log: env.Log, Policy: env.Policy, Scorer: NewStubScorer()})

	got, err := svc.Sentiment(context.Background(), sales, "sounds great, book me in")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Score, 1e-9)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)

	_, err = svc.Sentiment(context.Background(), sales, "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = svc.Sentiment(context.Background(), nil, "hello")
	assert.Error(t, err)
}
