package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/internal/table/domain"
	"github.com/smallbiznis/comanda/internal/table/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	svc  domain.Service
	repo domain.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Table{}))

	repo := repository.Provide()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, loc := range []string{"Salon", "Terraza Norte", "Terraza Norte"} {
		require.NoError(t, repo.InsertIfMissing(context.Background(), db, &domain.Table{
			ID:           snowflake.ID(100 + i),
			Number:       i + 1,
			Capacity:     4,
			Location:     loc,
			LocationSlug: slug.Make(loc),
			State:        domain.StateFree,
			CreatedAt:    now,
			UpdatedAt:    now,
		}))
	}

	svc := New(Params{DB: db, Log: zap.NewNop(), Clock: clock.NewFakeClock(now), Repo: repo})
	return fixture{db: db, svc: svc, repo: repo}
}

func counter(n *int64) domain.ActiveOrderCounter {
	return func(context.Context, *gorm.DB, snowflake.ID) (int64, error) {
		return *n, nil
	}
}

var reservations = actor.Actor{ID: "r-1", Role: actor.RoleReservations, Name: "Front desk"}

func TestListFiltersByStateAndLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	terrace, err := f.svc.List(ctx, domain.ListRequest{Location: "Terraza Norte"})
	require.NoError(t, err)
	require.Len(t, terrace, 2)
	assert.Equal(t, 2, terrace[0].Number)

	_, err = f.svc.Seat(ctx, f.db, 1, false)
	require.NoError(t, err)
	occupied, err := f.svc.List(ctx, domain.ListRequest{State: domain.StateOccupied})
	require.NoError(t, err)
	require.Len(t, occupied, 1)
	assert.Equal(t, 1, occupied[0].Number)

	_, err = f.svc.List(ctx, domain.ListRequest{State: "BROKEN"})
	assert.ErrorIs(t, err, domainerr.ErrValidation)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	table, err := f.svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "terraza-norte", table.LocationSlug)

	_, err = f.svc.Get(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrTableNotFound)

	_, err = f.svc.Get(ctx, 0)
	assert.ErrorIs(t, err, domainerr.ErrValidation)
}

func TestReservationTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	table, err := f.svc.SetReservation(ctx, reservations, 1, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReserved, table.State)

	// idempotent
	table, err = f.svc.SetReservation(ctx, reservations, 1, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReserved, table.State)

	table, err = f.svc.SetReservation(ctx, reservations, 1, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFree, table.State)

	_, err = f.svc.Seat(ctx, f.db, 2, false)
	require.NoError(t, err)
	_, err = f.svc.SetReservation(ctx, reservations, 2, true)
	assert.ErrorIs(t, err, domain.ErrTableOccupied)
	assert.ErrorIs(t, err, domainerr.ErrConflict)

	_, err = f.svc.SetReservation(ctx, reservations, 42, true)
	assert.ErrorIs(t, err, domain.ErrTableNotFound)
}

func TestSeatOnReservedTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetReservation(ctx, reservations, 3, true)
	require.NoError(t, err)

	_, err = f.svc.Seat(ctx, f.db, 3, true)
	assert.ErrorIs(t, err, domain.ErrTableReserved)
	still, err := f.svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReserved, still.State)

	res, err := f.svc.Seat(ctx, f.db, 3, false)
	require.NoError(t, err)
	assert.True(t, res.WasReserved)
	assert.Equal(t, domain.StateOccupied, res.Table.State)

	_, err = f.svc.Seat(ctx, f.db, 77, false)
	assert.ErrorIs(t, err, domain.ErrTableNotFound)
}

func TestSyncRecountsOpenOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var open int64

	seated, err := f.svc.Seat(ctx, f.db, 1, false)
	require.NoError(t, err)
	id := seated.Table.ID

	open = 2
	table, err := f.svc.Sync(ctx, f.db, id, counter(&open))
	require.NoError(t, err)
	assert.Equal(t, domain.StateOccupied, table.State)

	open = 0
	table, err = f.svc.Sync(ctx, f.db, id, counter(&open))
	require.NoError(t, err)
	assert.Equal(t, domain.StateFree, table.State)

	stored, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFree, stored.State)
}

func TestReconcileCorrectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// table 1 claims occupancy with no orders; table 3 is reserved and idle
	require.NoError(t, f.db.Exec(`UPDATE dining_tables SET state = ? WHERE number = ?`, domain.StateOccupied, 1).Error)
	require.NoError(t, f.db.Exec(`UPDATE dining_tables SET state = ? WHERE number = ?`, domain.StateReserved, 3).Error)

	var open int64
	changed, err := f.svc.Reconcile(ctx, counter(&open))
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	one, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFree, one.State)

	three, err := f.svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReserved, three.State)
}
