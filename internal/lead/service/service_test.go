package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/contact"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	"github.com/smallbiznis/opensmile/internal/lead/domain"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/smallbiznis/opensmile/internal/testkit"
	"github.com/smallbiznis/opensmile/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type leadEnv struct {
	*testkit.Env
	svc      domain.Service
	sales    *authdomain.User
	practice *practicedomain.Practice
	other    *practicedomain.Practice
}

func newLeadEnv(t *testing.T) *leadEnv {
	t.Helper()
	env := testkit.New(t)
	sales := env.User(t, authdomain.RoleSalesperson, 0)
	practice := env.Practice(t, "Bright Smiles", sales)
	other := env.Practice(t, "Other Dental", nil)

	svc := New(Params{
		DB:      env.DB,
		Log:     env.Log,
		Audit:   env.Audit,
		GenID:   env.Node,
		Clock:   env.Clock,
		Policy:  env.Policy,
		Gateway: env.Gateway,
	})
	return &leadEnv{Env: env, svc: svc, sales: sales, practice: practice, other: other}
}

func (e *leadEnv) create(t *testing.T, user *authdomain.User, practiceID snowflake.ID, name, email string) *domain.Lead {
	t.Helper()
	lead, err := e.svc.Create(context.Background(), user, domain.CreateLeadRequest{
		PracticeID: practiceID,
		Name:       name,
		Email:      email,
	})
	require.NoError(t, err)
	return lead
}

func (e *leadEnv) interactions(t *testing.T, leadID snowflake.ID) []interactiondomain.Interaction {
	t.Helper()
	var rows []interactiondomain.Interaction
	require.NoError(t, e.DB.Where("lead_id = ?", leadID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestCreateLeadDefaultsAndNote(t *testing.T) {
	env := newLeadEnv(t)

	lead, err := env.svc.Create(context.Background(), env.sales, domain.CreateLeadRequest{
		PracticeID: env.practice.ID,
		Name:       "  Pat Doe ",
		Email:      " Pat@Example.COM ",
		Phone:      "07700 900123",
		Notes:      "asked about veneers",
	})
	require.NoError(t, err)

	assert.Equal(t, env.practice.ID, lead.PracticeID)
	assert.Equal(t, "Pat Doe", lead.Name)
	assert.Equal(t, "pat@example.com", lead.Email)
	assert.Equal(t, "+07700900123", lead.Phone)
	assert.Equal(t, domain.StatusNew, lead.Status)
	assert.Equal(t, domain.SourceManualEntry, lead.Source)
	assert.Equal(t, domain.UrgencyMedium, lead.Urgency)

	rows := env.interactions(t, lead.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, interactiondomain.TypeNote, rows[0].Type)
	assert.Equal(t, "asked about veneers", rows[0].Body)
}

func TestCreateLeadValidation(t *testing.T) {
	env := newLeadEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, env.sales, domain.CreateLeadRequest{PracticeID: env.practice.ID, Name: "Pat", Email: "nope"})
	assert.ErrorIs(t, err, contact.ErrInvalidEmail)

	_, err = env.svc.Create(ctx, env.sales, domain.CreateLeadRequest{PracticeID: env.practice.ID, Name: "Pat", Email: "pat@example.com", Phone: "123"})
	assert.ErrorIs(t, err, contact.ErrInvalidPhone)

	_, err = env.svc.Create(ctx, env.sales, domain.CreateLeadRequest{PracticeID: env.practice.ID, Name: " ", Email: "pat@example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = env.svc.Create(ctx, env.sales, domain.CreateLeadRequest{PracticeID: env.practice.ID, Name: "Pat", Email: "pat@example.com", Source: "BILLBOARD"})
	assert.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestCreateLeadOutsideAssignedPracticeIsForbidden(t *testing.T) {
	env := newLeadEnv(t)

	_, err := env.svc.Create(context.Background(), env.sales, domain.CreateLeadRequest{
		PracticeID: env.other.ID,
		Name:       "Pat",
		Email:      "pat@example.com",
	})
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestPracticeOwnerCannotCreateLeads(t *testing.T) {
	env := newLeadEnv(t)
	owner := env.User(t, authdomain.RolePracticeOwner, env.practice.ID)

	_, err := env.svc.Create(context.Background(), owner, domain.CreateLeadRequest{
		PracticeID: env.practice.ID,
		Name:       "Pat",
		Email:      "pat@example.com",
	})
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestGetLeadFromAnotherPracticeIsNotFound(t *testing.T) {
	env := newLeadEnv(t)
	admin := env.User(t, authdomain.RoleAdmin, 0)
	foreign := env.create(t, admin, env.other.ID, "Sam Roe", "sam@example.com")
	owner := env.User(t, authdomain.RolePracticeOwner, env.practice.ID)

	_, err := env.svc.Get(context.Background(), env.sales, foreign.ID)
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)

	_, err = env.svc.Get(context.Background(), owner, foreign.ID)
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)

	_, err = env.svc.Get(context.Background(), env.sales, env.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)

	got, err := env.svc.Get(context.Background(), admin, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, foreign.ID, got.ID)
}

func TestListLeadsFiltersSearchAndPaginates(t *testing.T) {
	env := newLeadEnv(t)
	admin := env.User(t, authdomain.RoleAdmin, 0)
	ctx := context.Background()

	for _, name := range []string{"Alice Smith", "Bob Jones", "Carol Smithers"} {
		env.create(t, env.sales, env.practice.ID, name, "x"+name[:3]+"@example.com")
		env.Clock.Advance(time.Minute)
	}
	env.create(t, admin, env.other.ID, "Alice Elsewhere", "elsewhere@example.com")

	resp, err := env.svc.List(ctx, env.sales, domain.ListLeadRequest{Search: "SMITH"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Total)
	require.Len(t, resp.Leads, 2)
	// newest first
	assert.Equal(t, "Carol Smithers", resp.Leads[0].Name)

	resp, err = env.svc.List(ctx, env.sales, domain.ListLeadRequest{Page: pagination.Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.Limit)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, "Alice Smith", resp.Leads[0].Name)

	resp, err = env.svc.List(ctx, env.sales, domain.ListLeadRequest{Page: pagination.Page{Limit: 500}})
	require.NoError(t, err)
	assert.Equal(t, pagination.MaxLimit, resp.Limit)
	assert.Equal(t, 1, resp.Page)

	resp, err = env.svc.List(ctx, admin, domain.ListLeadRequest{Search: "alice"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Total)

	_, err = env.svc.List(ctx, env.sales, domain.ListLeadRequest{Status: "WON"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = env.svc.List(ctx, env.sales, domain.ListLeadRequest{PracticeID: &env.other.ID})
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestChangeStatusSetsTimestampsOnce(t *testing.T) {
	env := newLeadEnv(t)
	ctx := context.Background()
	lead := env.create(t, env.sales, env.practice.ID, "Pat Doe", "pat@example.com")

	env.Clock.Advance(90 * time.Second)
	contacted, err := env.svc.ChangeStatus(ctx, env.sales, lead.ID, domain.ChangeStatusRequest{Status: "CONTACTED", Notes: "left voicemail"})
	require.NoError(t, err)
	require.NotNil(t, contacted.FirstContactAt)
	require.NotNil(t, contacted.SpeedToFirstContactMs)
	assert.EqualValues(t, 90_000, *contacted.SpeedToFirstContactMs)
	firstContact := *contacted.FirstContactAt

	env.Clock.Advance(time.Hour)
	_, err = env.svc.ChangeStatus(ctx, env.sales, lead.ID, domain.ChangeStatusRequest{Status: "QUALIFIED"})
	require.NoError(t, err)
	again, err := env.svc.ChangeStatus(ctx, env.sales, lead.ID, domain.ChangeStatusRequest{Status: "CONTACTED"})
	require.NoError(t, err)
	assert.True(t, firstContact.Equal(*again.FirstContactAt))
	assert.EqualValues(t, 90_000, *again.SpeedToFirstContactMs)
	require.NotNil(t, again.QualifiedAt)

	lost, err := env.svc.ChangeStatus(ctx, env.sales, lead.ID, domain.ChangeStatusRequest{Status: "LOST", LostReason: "PRICE"})
	require.NoError(t, err)
	require.NotNil(t, lost.LostAt)
	require.NotNil(t, lost.LostReason)
	assert.Equal(t, domain.LostReasonPrice, *lost.LostReason)

	rows := env.interactions(t, lead.ID)
	require.Len(t, rows, 4)
	first := rows[0]
	assert.Equal(t, interactiondomain.TypeStatusChange, first.Type)
	assert.Equal(t, "NEW", first.Metadata["oldStatus"])
	assert.Equal(t, "CONTACTED", first.Metadata["newStatus"])
	assert.Contains(t, first.Body, "left voicemail")
}

func TestTransitionFromStaleSnapshotKeepsFirstTimestamps(t *testing.T) {
	env := newLeadEnv(t)
	ctx := context.Background()
	lead := env.create(t, env.sales, env.practice.ID, "Pat Doe", "pat@example.com")

	staleA, scope, err := env.svc.Resolve(ctx, env.sales, lead.ID)
	require.NoError(t, err)
	staleB, _, err := env.svc.Resolve(ctx, env.sales, lead.ID)
	require.NoError(t, err)

	transition := func(snapshot *domain.Lead, status domain.Status) *domain.Lead {
		var out *domain.Lead
		require.NoError(t, env.Gateway.InTx(ctx, scope, func(tx *gorm.DB) error {
			var err error
			out, err = env.svc.Transition(ctx, tx, scope, snapshot, domain.TransitionRequest{Status: status})
			return err
		}))
		return out
	}

	env.Clock.Advance(time.Minute)
	first := transition(staleA, domain.StatusContacted)
	require.NotNil(t, first.FirstContactAt)
	assert.True(t, testkit.Epoch.Add(time.Minute).Equal(*first.FirstContactAt))

	env.Clock.Advance(time.Hour)
	second := transition(staleB, domain.StatusContacted)
	assert.True(t, testkit.Epoch.Add(time.Minute).Equal(*second.FirstContactAt))
	assert.EqualValues(t, 60_000, *second.SpeedToFirstContactMs)

	rows := env.interactions(t, lead.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, "CONTACTED", rows[1].Metadata["oldStatus"])
}

func TestWriteOnceColumnsSurviveStaleUpdate(t *testing.T) {
	env := newLeadEnv(t)
	ctx := context.Background()
	lead := env.create(t, env.sales, env.practice.ID, "Pat Doe", "pat@example.com")
	scope := tenant.System(env.practice.ID)
	store := env.svc.(*Service).leads

	env.Clock.Advance(time.Minute)
	require.NoError(t, store.Update(ctx, scope, lead.ID, setOnce(domain.FirstContactFields(lead, env.Clock.Now()))))

	// lead still has no first contact, as a concurrent writer would see it
	env.Clock.Advance(time.Hour)
	require.NoError(t, store.Update(ctx, scope, lead.ID, setOnce(domain.TransitionFields(lead, domain.StatusContacted, env.Clock.Now(), nil))))

	got, err := store.FindByID(ctx, scope, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusContacted, got.Status)
	require.NotNil(t, got.FirstContactAt)
	assert.True(t, testkit.Epoch.Add(time.Minute).Equal(*got.FirstContactAt))
	assert.EqualValues(t, 60_000, *got.SpeedToFirstContactMs)
}

func TestMergeContextOutsideTransactionAppends(t *testing.T) {
	env := newLeadEnv(t)
	ctx := context.Background()
	lead := env.create(t, env.sales, env.practice.ID, "Pat Doe", "pat@example.com")
	scope := tenant.System(env.practice.ID)

	require.NoError(t, env.svc.MergeContext(ctx, nil, scope, lead.ID, []string{"cost"}, nil))
	require.NoError(t, env.svc.MergeContext(ctx, nil, scope, lead.ID, []string{"fear", "cost"}, []string{"wedding"}))

	got, err := env.svc.Get(ctx, env.sales, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cost", "fear"}, []string(got.Objections))
	assert.Equal(t, []string{"wedding"}, []string(got.Motivations))
}

func TestChangeStatusRejectsUnknownValues(t *testing.T) {
	env := newLeadEnv(t)
	lead := env.create(t, env.sales, env.practice.ID, "Pat Doe", "pat@example.com")

	_, err := env.svc.ChangeStatus(context.Background(), env.sales, lead.ID, domain.ChangeStatusRequest{Status: "WON"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = env.svc.ChangeStatus(context.Background(), env.sales, lead.ID, domain.ChangeStatusRequest{Status: "LOST", LostReason: "BORED"})
	assert.ErrorIs(t, err, domain.ErrInvalidLostReason)
}

func TestUpdateLeadMergesContextAndConsent(t *testing.T) {
	env := newLeadEnv(t)
	ctx := context.Background()
	lead, err := env.svc.Create(ctx, env.sales, domain.CreateLeadRequest{
		PracticeID:           env.practice.ID,
		Name:                 "Pat Doe",
		Email:                "pat@example.com",
		InterestedTreatments: []string{"Invisalign"},
	})
	require.NoError(t, err)

	consent := true
	budget := 4000.0
	updated, err := env.svc.Update(ctx, env.sales, lead.ID, domain.UpdateLeadRequest{
		InterestedTreatments: []string{"Invisalign", "Veneers"},
		Objections:           []string{"price", "price"},
		EstimatedBudget:      &budget,
		RecordingConsent:     &consent,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Invisalign", "Veneers"}, []string(updated.InterestedTreatments))
	assert.Equal(t, []string{"price"}, []string(updated.Objections))
	require.NotNil(t, updated.EstimatedBudget)
	assert.Equal(t, 4000.0, *updated.EstimatedBudget)
	assert.True(t, updated.RecordingConsent)
	require.NotNil(t, updated.RecordingConsentDate)
	assert.Equal(t, "VERBAL", updated.RecordingConsentMethod)
	consentDate := *updated.RecordingConsentDate

	env.Clock.Advance(24 * time.Hour)
	again, err := env.svc.Update(ctx, env.sales, lead.ID, domain.UpdateLeadRequest{
		RecordingConsent: &consent,
		Objections:       []string{"timing"},
	})
	require.NoError(t, err)
	assert.True(t, consentDate.Equal(*again.RecordingConsentDate))
	assert.Equal(t, []string{"price", "timing"}, []string(again.Objections))

	bad := "x"
	_, err = env.svc.Update(ctx, env.sales, lead.ID, domain.UpdateLeadRequest{Phone: &bad})
	assert.ErrorIs(t, err, contact.ErrInvalidPhone)
}
