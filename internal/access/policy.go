// Package access turns an authenticated user into the set of practices they
// may see and the capabilities they hold.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrForbidden is shared with tenant so a scope refusal and a policy
	// refusal are the same error to callers.
	ErrForbidden       = tenant.ErrForbidden
	ErrUnauthenticated = errors.New("unauthenticated")
)

type Params struct {
	fx.In

	Directory practicedomain.Directory
	Enforcer  *casbin.SyncedEnforcer
	Log       *zap.Logger
	Audit     *redact.Logger `optional:"true"`
}

type Policy struct {
	directory practicedomain.Directory
	enforcer  *casbin.SyncedEnforcer
	log       *zap.Logger
	audit     *redact.Logger
}

func NewPolicy(p Params) *Policy {
	return &Policy{
		directory: p.Directory,
		enforcer:  p.Enforcer,
		log:       p.Log.Named("access.policy"),
		audit:     p.Audit,
	}
}

// ResolveVisibility computes the read filter for user. An explicit practice
// narrows the result and must itself be visible. A user with nothing visible
// is refused rather than given an empty filter.
func (p *Policy) ResolveVisibility(ctx context.Context, user *authdomain.User, explicit *snowflake.ID) (tenant.Filter, error) {
	if user == nil {
		return tenant.Filter{}, ErrUnauthenticated
	}

	switch user.Role {
	case authdomain.RoleAdmin:
		if explicit != nil {
			return tenant.Only(*explicit), nil
		}
		return tenant.Unrestricted(), nil

	case authdomain.RoleSalesperson:
		ids, err := p.directory.AssignedTo(ctx, user.ID)
		if err != nil {
			return tenant.Filter{}, fmt.Errorf("resolve assigned practices: %w", err)
		}
		if len(ids) == 0 {
			p.denied(ctx, user, "no_assigned_practices")
			return tenant.Filter{}, ErrForbidden
		}
		assigned := tenant.Only(ids[0], ids[1:]...)
		if explicit != nil {
			if !assigned.Allows(*explicit) {
				p.denied(ctx, user, "practice_not_assigned")
				return tenant.Filter{}, ErrForbidden
			}
			return tenant.Only(*explicit), nil
		}
		return assigned, nil

	case authdomain.RolePracticeOwner, authdomain.RolePracticeStaff:
		if user.PracticeID == nil || *user.PracticeID == 0 {
			p.denied(ctx, user, "no_linked_practice")
			return tenant.Filter{}, ErrForbidden
		}
		if explicit != nil && *explicit != *user.PracticeID {
			p.denied(ctx, user, "practice_mismatch")
			return tenant.Filter{}, ErrForbidden
		}
		return tenant.Only(*user.PracticeID), nil

	default:
		p.denied(ctx, user, "unknown_role")
		return tenant.Filter{}, ErrForbidden
	}
}

// PracticeScope is the write path: visibility is re-derived on every call
// and narrowed to the one practice being written.
func (p *Policy) PracticeScope(ctx context.Context, user *authdomain.User, practiceID snowflake.ID) (tenant.Scope, error) {
	filter, err := p.ResolveVisibility(ctx, user, nil)
	if err != nil {
		return tenant.Scope{}, err
	}
	scope, err := filter.Scope(practiceID)
	if err != nil {
		p.denied(ctx, user, "practice_out_of_scope")
		return tenant.Scope{}, err
	}
	return scope, nil
}

// Authorize checks the capability matrix for role.
func (p *Policy) Authorize(role authdomain.Role, object, action string) error {
	if _, err := authdomain.ParseRole(string(role)); err != nil {
		return ErrForbidden
	}
	allowed, err := p.enforcer.Enforce(RoleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// Can is Authorize for a user, refusing a nil user.
func (p *Policy) Can(user *authdomain.User, object, action string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	return p.Authorize(user.Role, object, action)
}

func (p *Policy) denied(ctx context.Context, user *authdomain.User, reason string) {
	p.audit.Log(ctx, "access:denied", map[string]any{
		"userId": user.ID.String(),
		"role":   string(user.Role),
		"action": reason,
	})
}
