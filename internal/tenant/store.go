package tenant

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/pkg/rls"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PracticeOwned is implemented by every record that belongs to one practice.
type PracticeOwned interface {
	GetPracticeID() snowflake.ID
	SetPracticeID(id snowflake.ID)
}

// Record constrains Store to pointer receivers of practice-owned models.
type Record[T any] interface {
	*T
	PracticeOwned
}

// Cond is one WHERE clause.
type Cond struct {
	Expr string
	Args []any
}

func Where(expr string, args ...any) Cond {
	return Cond{Expr: expr, Args: args}
}

// Query narrows a read inside the practice restriction.
type Query struct {
	Conds  []Cond
	Order  string
	Limit  int
	Offset int
}

func (q Query) apply(db *gorm.DB) *gorm.DB {
	for _, c := range q.Conds {
		db = db.Where(c.Expr, c.Args...)
	}
	return db
}

func (q Query) page(db *gorm.DB) *gorm.DB {
	if q.Order != "" {
		db = db.Order(q.Order)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db
}

// Store is the only read/write path for a practice-owned table.
type Store[T any, P Record[T]] struct {
	db *gorm.DB
}

func NewStore[T any, P Record[T]](db *gorm.DB) *Store[T, P] {
	return &Store[T, P]{db: db}
}

// WithTx rebinds the store to an open transaction.
func (s *Store[T, P]) WithTx(tx *gorm.DB) *Store[T, P] {
	return &Store[T, P]{db: tx}
}

func (s *Store[T, P]) scoped(ctx context.Context, scope Scope) *gorm.DB {
	return s.db.WithContext(ctx).Model(P(new(T))).Where("practice_id = ?", scope.practiceID)
}

// Create stamps the record with the scope's practice before inserting.
func (s *Store[T, P]) Create(ctx context.Context, scope Scope, rec P) error {
	if !scope.valid() {
		return ErrScopeRequired
	}
	rec.SetPracticeID(scope.practiceID)
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store[T, P]) FindByID(ctx context.Context, scope Scope, id snowflake.ID) (P, error) {
	if !scope.valid() {
		return nil, ErrScopeRequired
	}
	return s.first(s.scoped(ctx, scope).Where("id = ?", id))
}

// FindForUpdate is FindByID with a row lock held until the transaction ends.
// SQLite has no row locks; its writers are already serialized per database.
func (s *Store[T, P]) FindForUpdate(ctx context.Context, scope Scope, id snowflake.ID) (P, error) {
	if !scope.valid() {
		return nil, ErrScopeRequired
	}
	q := s.scoped(ctx, scope).Where("id = ?", id)
	if s.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return s.first(q)
}

func (s *Store[T, P]) first(q *gorm.DB) (P, error) {
	rec := P(new(T))
	err := q.First(rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store[T, P]) Find(ctx context.Context, scope Scope, q Query) ([]P, error) {
	if !scope.valid() {
		return nil, ErrScopeRequired
	}
	var out []P
	err := q.page(q.apply(s.scoped(ctx, scope))).Find(&out).Error
	return out, err
}

func (s *Store[T, P]) Count(ctx context.Context, scope Scope, q Query) (int64, error) {
	if !scope.valid() {
		return 0, ErrScopeRequired
	}
	var n int64
	err := q.apply(s.scoped(ctx, scope)).Count(&n).Error
	return n, err
}

// Update writes fields on one row of the scope's practice. Moving a row to
// another practice is refused.
func (s *Store[T, P]) Update(ctx context.Context, scope Scope, id snowflake.ID, fields map[string]any) error {
	return s.UpdateIf(ctx, scope, id, fields)
}

// UpdateIf is Update guarded by extra conditions. A row that exists but fails
// a guard is reported as ErrNotFound.
func (s *Store[T, P]) UpdateIf(ctx context.Context, scope Scope, id snowflake.ID, fields map[string]any, guards ...Cond) error {
	if !scope.valid() {
		return ErrScopeRequired
	}
	if _, ok := fields["practice_id"]; ok {
		return ErrPracticeImmutable
	}
	if len(fields) == 0 {
		return nil
	}
	tx := Query{Conds: guards}.apply(s.scoped(ctx, scope).Where("id = ?", id)).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindVisible is the multi-practice read. It returns one page and the total.
func (s *Store[T, P]) FindVisible(ctx context.Context, filter Filter, q Query) ([]P, int64, error) {
	base := q.apply(filter.Apply(s.db.WithContext(ctx).Model(P(new(T))), "practice_id"))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []P
	if err := q.page(base.Session(&gorm.Session{})).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store[T, P]) CountVisible(ctx context.Context, filter Filter, q Query) (int64, error) {
	var n int64
	err := q.apply(filter.Apply(s.db.WithContext(ctx).Model(P(new(T))), "practice_id")).Count(&n).Error
	return n, err
}

// PracticeOf reads only the owning practice of a row. Background jobs use it
// to mint a System scope for a record addressed by id alone.
func (s *Store[T, P]) PracticeOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	var row struct {
		PracticeID snowflake.ID
	}
	err := s.db.WithContext(ctx).Model(P(new(T))).Select("practice_id").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return row.PracticeID, nil
}

// Gateway opens practice-bound transactions.
type Gateway struct {
	db *gorm.DB
}

func NewGateway(db *gorm.DB) *Gateway {
	return &Gateway{db: db}
}

func (g *Gateway) DB() *gorm.DB { return g.db }

// InTx runs fn in a transaction. On PostgreSQL the transaction is bound to
// the scope's practice for row level security.
func (g *Gateway) InTx(ctx context.Context, scope Scope, fn func(tx *gorm.DB) error) error {
	if !scope.valid() {
		return ErrScopeRequired
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := rls.WithPractice(tx, int64(scope.practiceID)); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}
