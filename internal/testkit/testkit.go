// Package testkit builds the shared fixtures service tests run against: an
// isolated SQLite schema, a fake clock and the real access policy.
package testkit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/migration"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	practicerepo "github.com/smallbiznis/opensmile/internal/practice/repository"
	practicesvc "github.com/smallbiznis/opensmile/internal/practice/service"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/smallbiznis/opensmile/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type Env struct {
	DB        *gorm.DB
	Node      *snowflake.Node
	Clock     *clock.FakeClock
	Log       *zap.Logger
	Audit     *redact.Logger
	Policy    *access.Policy
	Gateway   *tenant.Gateway
	Practices practicedomain.Service
}

func New(t *testing.T) *Env {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	return newEnv(t, conn)
}

// NewOnDisk is New backed by a SQLite file in t.TempDir, for tests that
// write from several goroutines at once.
func NewOnDisk(t *testing.T) *Env {
	t.Helper()
	conn, err := db.NewTestFile(filepath.Join(t.TempDir(), "opensmile.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return newEnv(t, conn)
}

func newEnv(t *testing.T, conn *gorm.DB) *Env {
	t.Helper()
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	enforcer, err := access.NewModelEnforcer()
	require.NoError(t, err)

	log := zap.NewNop()
	audit := redact.NewLogger(log)
	clk := clock.NewFakeClock(Epoch)
	repo := practicerepo.Provide(conn)

	return &Env{
		DB:      conn,
		Node:    node,
		Clock:   clk,
		Log:     log,
		Audit:   audit,
		Gateway: tenant.NewGateway(conn),
		Policy: access.NewPolicy(access.Params{
			Directory: repo,
			Enforcer:  enforcer,
			Log:       log,
			Audit:     audit,
		}),
		Practices: practicesvc.New(practicesvc.Params{
			DB:    conn,
			Log:   log,
			GenID: node,
			Clock: clk,
			Repo:  repo,
		}),
	}
}

// User inserts a user with the given role. practiceID is only stored for
// practice-bound roles.
func (e *Env) User(t *testing.T, role authdomain.Role, practiceID snowflake.ID) *authdomain.User {
	t.Helper()
	now := e.Clock.Now()
	u := &authdomain.User{
		ID:        e.Node.Generate(),
		Role:      role,
		FullName:  string(role) + " user",
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.Email = u.ID.String() + "@example.com"
	if role.IsPracticeBound() {
		u.PracticeID = &practiceID
	}
	require.NoError(t, e.DB.Create(u).Error)
	return u
}

// Practice inserts an active practice, optionally assigned to a salesperson.
func (e *Env) Practice(t *testing.T, name string, salesperson *authdomain.User) *practicedomain.Practice {
	t.Helper()
	var owner *snowflake.ID
	if salesperson != nil {
		id := salesperson.ID
		owner = &id
	}
	var p *practicedomain.Practice
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = e.Practices.Create(context.Background(), tx, practicedomain.CreatePracticeRequest{
			Name:                  name,
			AssignedSalespersonID: owner,
		})
		return err
	})
	require.NoError(t, err)
	return p
}

func (e *Env) Treatment(t *testing.T, practiceID snowflake.ID, name string, price float64) *practicedomain.TreatmentType {
	t.Helper()
	tt := &practicedomain.TreatmentType{
		ID:                   e.Node.Generate(),
		PracticeID:           practiceID,
		Name:                 name,
		Category:             "COSMETIC",
		AveragePrice:         price,
		ConsultationDuration: 30,
	}
	require.NoError(t, e.DB.Create(tt).Error)
	return tt
}

func (e *Env) Campaign(t *testing.T, practiceID snowflake.ID, spent float64) *practicedomain.Campaign {
	t.Helper()
	now := e.Clock.Now()
	c := &practicedomain.Campaign{
		ID:         e.Node.Generate(),
		PracticeID: practiceID,
		Name:       "Spring campaign",
		Platform:   "FACEBOOK",
		Budget:     spent * 2,
		Spent:      spent,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, e.DB.Create(c).Error)
	return c
}
