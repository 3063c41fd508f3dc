// Package tenant binds every read and write of practice-owned records to a
// practice resolved upstream by the access policy.
package tenant

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not_found")
	ErrScopeRequired     = errors.New("tenant_scope_required")
	ErrPracticeImmutable = errors.New("practice_id_immutable")
)

// Scope is a capability for exactly one practice. The zero value is unusable.
type Scope struct {
	practiceID snowflake.ID
}

// System mints a scope for callers that resolve the practice themselves:
// the webhook pipeline after campaign lookup and maintenance jobs.
func System(practiceID snowflake.ID) Scope {
	return Scope{practiceID: practiceID}
}

func (s Scope) PracticeID() snowflake.ID { return s.practiceID }

func (s Scope) valid() bool { return s.practiceID != 0 }

// Filter is the set of practices a caller may read.
type Filter struct {
	unrestricted bool
	ids          []snowflake.ID
}

func Unrestricted() Filter {
	return Filter{unrestricted: true}
}

// Only restricts the filter to the given practices. At least one id is required.
func Only(first snowflake.ID, rest ...snowflake.ID) Filter {
	ids := make([]snowflake.ID, 0, 1+len(rest))
	ids = append(ids, first)
	for _, id := range rest {
		if !containsID(ids, id) {
			ids = append(ids, id)
		}
	}
	return Filter{ids: ids}
}

func (f Filter) IsUnrestricted() bool { return f.unrestricted }

// PracticeIDs returns a copy of the allowed ids; nil when unrestricted.
func (f Filter) PracticeIDs() []snowflake.ID {
	if f.unrestricted {
		return nil
	}
	out := make([]snowflake.ID, len(f.ids))
	copy(out, f.ids)
	return out
}

func (f Filter) Allows(id snowflake.ID) bool {
	if id == 0 {
		return false
	}
	return f.unrestricted || containsID(f.ids, id)
}

// Scope narrows the filter to one practice it allows.
func (f Filter) Scope(id snowflake.ID) (Scope, error) {
	if !f.Allows(id) {
		return Scope{}, ErrForbidden
	}
	return Scope{practiceID: id}, nil
}

// Apply restricts q to rows whose column falls inside the filter. A zero
// Filter matches nothing.
func (f Filter) Apply(q *gorm.DB, column string) *gorm.DB {
	if f.unrestricted {
		return q
	}
	if len(f.ids) == 0 {
		return q.Where("1 = 0")
	}
	return q.Where(column+" IN ?", f.ids)
}

func containsID(ids []snowflake.ID, id snowflake.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
