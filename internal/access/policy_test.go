package access

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) AssignedTo(ctx context.Context, salespersonID snowflake.ID) ([]snowflake.ID, error) {
	args := m.Called(ctx, salespersonID)
	ids, _ := args.Get(0).([]snowflake.ID)
	return ids, args.Error(1)
}

func newTestPolicy(t *testing.T, dir *mockDirectory) *Policy {
	t.Helper()
	enforcer, err := NewModelEnforcer()
	require.NoError(t, err)
	return NewPolicy(Params{Directory: dir, Enforcer: enforcer, Log: zap.NewNop()})
}

func practiceID(id int64) *snowflake.ID {
	v := snowflake.ID(id)
	return &v
}

func TestResolveVisibilityAdmin(t *testing.T) {
	p := newTestPolicy(t, &mockDirectory{})
	admin := &authdomain.User{ID: 1, Role: authdomain.RoleAdmin}

	f, err := p.ResolveVisibility(context.Background(), admin, nil)
	require.NoError(t, err)
	assert.True(t, f.IsUnrestricted())

	f, err = p.ResolveVisibility(context.Background(), admin, practiceID(7))
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{7}, f.PracticeIDs())
}

func TestResolveVisibilitySalesperson(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("AssignedTo", mock.Anything, snowflake.ID(2)).Return([]snowflake.ID{10, 11}, nil)
	p := newTestPolicy(t, dir)
	sales := &authdomain.User{ID: 2, Role: authdomain.RoleSalesperson}

	f, err := p.ResolveVisibility(context.Background(), sales, nil)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{10, 11}, f.PracticeIDs())

	f, err = p.ResolveVisibility(context.Background(), sales, practiceID(11))
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{11}, f.PracticeIDs())

	_, err = p.ResolveVisibility(context.Background(), sales, practiceID(12))
	assert.ErrorIs(t, err, ErrForbidden)
	dir.AssertExpectations(t)
}

func TestResolveVisibilitySalespersonWithoutPracticesIsForbidden(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("AssignedTo", mock.Anything, snowflake.ID(3)).Return([]snowflake.ID(nil), nil)
	p := newTestPolicy(t, dir)

	_, err := p.ResolveVisibility(context.Background(), &authdomain.User{ID: 3, Role: authdomain.RoleSalesperson}, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestResolveVisibilityDirectoryError(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("AssignedTo", mock.Anything, snowflake.ID(3)).Return(nil, errors.New("db down"))
	p := newTestPolicy(t, dir)

	_, err := p.ResolveVisibility(context.Background(), &authdomain.User{ID: 3, Role: authdomain.RoleSalesperson}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestResolveVisibilityPracticeRoles(t *testing.T) {
	p := newTestPolicy(t, &mockDirectory{})

	for _, role := range []authdomain.Role{authdomain.RolePracticeOwner, authdomain.RolePracticeStaff} {
		user := &authdomain.User{ID: 4, Role: role, PracticeID: practiceID(20)}

		f, err := p.ResolveVisibility(context.Background(), user, nil)
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{20}, f.PracticeIDs())

		_, err = p.ResolveVisibility(context.Background(), user, practiceID(21))
		assert.ErrorIs(t, err, ErrForbidden, role)

		_, err = p.ResolveVisibility(context.Background(), &authdomain.User{ID: 5, Role: role}, nil)
		assert.ErrorIs(t, err, ErrForbidden, role)
	}
}

func TestResolveVisibilityUnknownRole(t *testing.T) {
	p := newTestPolicy(t, &mockDirectory{})
	_, err := p.ResolveVisibility(context.Background(), &authdomain.User{ID: 6, Role: "DENTIST"}, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = p.ResolveVisibility(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPracticeScope(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("AssignedTo", mock.Anything, snowflake.ID(2)).Return([]snowflake.ID{10}, nil)
	p := newTestPolicy(t, dir)
	sales := &authdomain.User{ID: 2, Role: authdomain.RoleSalesperson}

	scope, err := p.PracticeScope(context.Background(), sales, 10)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), scope.PracticeID())

	_, err = p.PracticeScope(context.Background(), sales, 99)
	assert.ErrorIs(t, err, tenant.ErrForbidden)

	// Re-derived on each call.
	dir.AssertNumberOfCalls(t, "AssignedTo", 2)
}

func TestAuthorizeCapabilityMatrix(t *testing.T) {
	p := newTestPolicy(t, &mockDirectory{})

	cases := []struct {
		role   authdomain.Role
		object string
		action string
		allow  bool
	}{
		{authdomain.RoleAdmin, ObjectLead, ActionCreate, true},
		{authdomain.RoleSalesperson, ObjectLead, ActionCreate, true},
		{authdomain.RolePracticeOwner, ObjectLead, ActionCreate, false},
		{authdomain.RolePracticeStaff, ObjectLead, ActionCreate, false},
		{authdomain.RolePracticeStaff, ObjectLead, ActionRead, true},
		{authdomain.RolePracticeOwner, ObjectInteraction, ActionCreate, true},
		{authdomain.RolePracticeStaff, ObjectAppointment, ActionRecordOutcome, true},
		{authdomain.RolePracticeOwner, ObjectPractice, ActionList, false},
		{authdomain.RoleSalesperson, ObjectPractice, ActionList, true},
		{authdomain.RolePracticeStaff, ObjectAI, ActionUse, true},
		{authdomain.RolePracticeOwner, ObjectAnalytics, ActionRead, true},
		{"DENTIST", ObjectLead, ActionRead, false},
	}
	for _, tc := range cases {
		err := p.Authorize(tc.role, tc.object, tc.action)
		if tc.allow {
			assert.NoError(t, err, "%s %s:%s", tc.role, tc.object, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s:%s", tc.role, tc.object, tc.action)
		}
	}
}
