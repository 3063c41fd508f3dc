package tenant

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	dbtest "github.com/smallbiznis/opensmile/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memo struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PracticeID snowflake.ID `gorm:"not null;index"`
	Title      string
}

func (m *memo) GetPracticeID() snowflake.ID   { return m.PracticeID }
func (m *memo) SetPracticeID(id snowflake.ID) { m.PracticeID = id }

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbtest.NewTest()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&memo{}))
	return db
}

func TestStoreCreateStampsScopePractice(t *testing.T) {
	db := setupDB(t)
	store := NewStore[memo](db)
	ctx := context.Background()

	rec := &memo{ID: 1, PracticeID: 999, Title: "call back"}
	require.NoError(t, store.Create(ctx, System(10), rec))
	assert.Equal(t, snowflake.ID(10), rec.PracticeID)
}

func TestStoreFindByIDHidesOtherPractice(t *testing.T) {
	db := setupDB(t)
	store := NewStore[memo](db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, System(10), &memo{ID: 1, Title: "a"}))

	got, err := store.FindByID(ctx, System(10), 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)

	_, err = store.FindByID(ctx, System(20), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsZeroScope(t *testing.T) {
	store := NewStore[memo](setupDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, store.Create(ctx, Scope{}, &memo{ID: 1}), ErrScopeRequired)
	_, err := store.FindByID(ctx, Scope{}, 1)
	assert.ErrorIs(t, err, ErrScopeRequired)
	_, err = store.Find(ctx, Scope{}, Query{})
	assert.ErrorIs(t, err, ErrScopeRequired)
}

func TestStoreUpdate(t *testing.T) {
	db := setupDB(t)
	store := NewStore[memo](db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, System(10), &memo{ID: 1, Title: "a"}))

	err := store.Update(ctx, System(10), 1, map[string]any{"practice_id": snowflake.ID(20)})
	assert.ErrorIs(t, err, ErrPracticeImmutable)

	err = store.Update(ctx, System(20), 1, map[string]any{"title": "b"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Update(ctx, System(10), 1, map[string]any{"title": "b"}))
	got, err := store.FindByID(ctx, System(10), 1)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Title)
}

func TestStoreFindVisible(t *testing.T) {
	db := setupDB(t)
	store := NewStore[memo](db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, System(10), &memo{ID: 1, Title: "a"}))
	require.NoError(t, store.Create(ctx, System(10), &memo{ID: 2, Title: "b"}))
	require.NoError(t, store.Create(ctx, System(20), &memo{ID: 3, Title: "c"}))
	require.NoError(t, store.Create(ctx, System(30), &memo{ID: 4, Title: "d"}))

	rows, total, err := store.FindVisible(ctx, Only(10, 20), Query{Order: "id ASC", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 2)
	assert.Equal(t, snowflake.ID(1), rows[0].ID)

	_, total, err = store.FindVisible(ctx, Unrestricted(), Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	_, total, err = store.FindVisible(ctx, Filter{}, Query{})
	require.NoError(t, err)
	assert.Zero(t, total)

	n, err := store.Count(ctx, System(10), Query{Conds: []Cond{Where("title = ?", "b")}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStorePracticeOf(t *testing.T) {
	db := setupDB(t)
	store := NewStore[memo](db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, System(10), &memo{ID: 7}))

	pid, err := store.PracticeOf(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(10), pid)

	_, err = store.PracticeOf(ctx, 8)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGatewayInTxRollsBack(t *testing.T) {
	db := setupDB(t)
	gw := NewGateway(db)
	store := NewStore[memo](db)
	ctx := context.Background()

	err := gw.InTx(ctx, System(10), func(tx *gorm.DB) error {
		if err := store.WithTx(tx).Create(ctx, System(10), &memo{ID: 1}); err != nil {
			return err
		}
		return ErrForbidden
	})
	assert.ErrorIs(t, err, ErrForbidden)

	n, err := store.Count(ctx, System(10), Query{})
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, gw.InTx(ctx, Scope{}, func(*gorm.DB) error { return nil }), ErrScopeRequired)
}
