package access

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectLead        = "lead"
	ObjectInteraction = "interaction"
	ObjectAppointment = "appointment"
	ObjectPractice    = "practice"
	ObjectAnalytics   = "analytics"
	ObjectAI          = "ai"
)

const (
	ActionCreate        = "create"
	ActionRead          = "read"
	ActionUpdate        = "update"
	ActionList          = "list"
	ActionRecordOutcome = "record_outcome"
	ActionUse           = "use"
)

const (
	roleMember     = "role:member"
	roleProspector = "role:prospector"
)

// RoleSubject is the casbin subject for a user role.
func RoleSubject(role authdomain.Role) string {
	return "role:" + string(role)
}

// NewEnforcer persists policies through the gorm adapter and seeds the
// capability matrix on every boot.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewModelEnforcer holds the seeded matrix in memory only.
func NewModelEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Every dashboard role
		{roleMember, ObjectLead, ActionRead},
		{roleMember, ObjectLead, ActionUpdate},
		{roleMember, ObjectInteraction, ActionCreate},
		{roleMember, ObjectInteraction, ActionRead},
		{roleMember, ObjectAppointment, ActionCreate},
		{roleMember, ObjectAppointment, ActionRead},
		{roleMember, ObjectAppointment, ActionRecordOutcome},
		{roleMember, ObjectAnalytics, ActionRead},
		{roleMember, ObjectAI, ActionUse},

		// Roles that work across practices
		{roleProspector, ObjectLead, ActionCreate},
		{roleProspector, ObjectPractice, ActionList},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{RoleSubject(authdomain.RoleAdmin), roleMember},
		{RoleSubject(authdomain.RoleAdmin), roleProspector},
		{RoleSubject(authdomain.RoleSalesperson), roleMember},
		{RoleSubject(authdomain.RoleSalesperson), roleProspector},
		{RoleSubject(authdomain.RolePracticeOwner), roleMember},
		{RoleSubject(authdomain.RolePracticeStaff), roleMember},
	}
	for _, g := range groupings {
		if _, err := enforcer.AddGroupingPolicy(g); err != nil {
			return err
		}
	}
	return nil
}
