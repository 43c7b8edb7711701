package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	auditdomain "github.com/smallbiznis/comanda/internal/audit/domain"
	auditrepo "github.com/smallbiznis/comanda/internal/audit/repository"
	auditservice "github.com/smallbiznis/comanda/internal/audit/service"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/closing/domain"
	"github.com/smallbiznis/comanda/internal/closing/repository"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/domainerr"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/settlement"
	"github.com/smallbiznis/comanda/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	shiftStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	shiftEnd   = time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	supervisor = actor.Actor{ID: "sup-1", Role: actor.RoleSupervisor, Name: "Marta"}
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	audit auditdomain.Service
	clock *clock.FakeClock
	next  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testkit.OpenDB(t)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(shiftEnd.Add(10 * time.Minute))

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Config: config.Config{ClosingNumberTemplate: config.DefaultClosingNumberTemplate},
		Repo:   repository.Provide(),
		Audit:  audit,
	})
	return &fixture{db: db, svc: svc, audit: audit, clock: clk, next: 1000}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) order(t *testing.T, state orderdomain.State, method settlement.Method, total, discount string, paidAt time.Time) snowflake.ID {
	t.Helper()
	f.next++
	id := snowflake.ID(f.next)
	o := orderdomain.Order{
		ID:          id,
		Number:      fmt.Sprintf("ORD-%06d", f.next),
		TableID:     snowflake.ID(1),
		TableNumber: 3,
		Waiter:      actor.Actor{ID: "w-1", Role: actor.RoleWaitstaff, Name: "Lucia"},
		State:       state,
		Subtotal:    money(total).Add(money(discount)),
		Total:       money(total),
		Version:     1,
		CreatedAt:   paidAt.Add(-time.Hour),
		UpdatedAt:   paidAt,
	}
	o.Discount.Amount = money(discount)
	if state == orderdomain.StatePaid {
		m := method
		at := paidAt
		o.Payment.Method = &m
		o.Payment.PaidAt = &at
	}
	require.NoError(t, f.db.Create(&o).Error)
	return id
}

func (f *fixture) paid(t *testing.T, method settlement.Method, total, discount string, paidAt time.Time) snowflake.ID {
	return f.order(t, orderdomain.StatePaid, method, total, discount, paidAt)
}

func closeReq(counted string) domain.CloseShiftRequest {
	c := money(counted)
	return domain.CloseShiftRequest{
		WindowStart:  shiftStart,
		WindowEnd:    shiftEnd,
		ShiftLabel:   "dinner",
		OpeningFloat: money("500.00"),
		CountedCash:  &c,
	}
}

func TestCloseReconcilesShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cashID := f.paid(t, settlement.MethodCash, "1350.00", "150.00", shiftStart.Add(2*time.Hour))
	f.paid(t, settlement.MethodCard, "2000.00", "0", shiftStart.Add(3*time.Hour))
	f.paid(t, settlement.MethodQR, "500.00", "0", shiftStart.Add(4*time.Hour))
	f.order(t, orderdomain.StateDelivered, "", "800.00", "0", shiftStart.Add(5*time.Hour))

	closing, err := f.svc.Close(ctx, supervisor, closeReq("1850.00"))
	require.NoError(t, err)

	assert.Equal(t, "CC-20260301-0001", closing.Number)
	assert.Equal(t, domain.StatusClosed, closing.Status)
	assert.Equal(t, 3, closing.OrderCount)
	assert.True(t, money("3850.00").Equal(closing.TotalSales))
	assert.True(t, money("150.00").Equal(closing.TotalDiscounts))
	assert.True(t, money("1350.00").Equal(closing.CashSales))
	assert.True(t, money("1850.00").Equal(closing.ExpectedCash))
	assert.True(t, closing.Variance.IsZero())
	assert.Equal(t, supervisor, closing.ClosedBy)
	require.Len(t, closing.Totals, 3)
	assert.Equal(t, settlement.MethodCash, closing.Totals[0].Method)
	assert.Contains(t, closing.OrderIDs, cashID)

	stored, err := f.svc.Get(ctx, closing.ID)
	require.NoError(t, err)
	assert.Equal(t, closing.Number, stored.Number)
	assert.True(t, stored.Variance.IsZero())
	require.Len(t, stored.Totals, 3)
	assert.Len(t, stored.OrderIDs, 3)
	assert.Equal(t, settlement.MethodCash, stored.Totals[0].Method)
	assert.Equal(t, settlement.MethodCard, stored.Totals[1].Method)
	assert.Equal(t, settlement.MethodQR, stored.Totals[2].Method)

	logs, err := f.audit.List(ctx, auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetClosing, TargetID: closing.ID.String()})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActionClosingCreated, logs.AuditLogs[0].Action)
}

func TestCloseWindowIsHalfOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	atStart := f.paid(t, settlement.MethodCard, "100.00", "0", shiftStart)
	f.paid(t, settlement.MethodCard, "200.00", "0", shiftEnd)
	f.paid(t, settlement.MethodCard, "400.00", "0", shiftStart.Add(-time.Second))

	closing, err := f.svc.Close(ctx, supervisor, closeReq("500.00"))
	require.NoError(t, err)
	assert.Equal(t, 1, closing.OrderCount)
	assert.Equal(t, []snowflake.ID{atStart}, closing.OrderIDs)
	assert.True(t, money("100.00").Equal(closing.TotalSales))
}

func TestCloseNeverCountsAnOrderTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.paid(t, settlement.MethodCash, "900.00", "100.00", shiftStart.Add(time.Hour))

	_, err := f.svc.Close(ctx, supervisor, closeReq("1400.00"))
	require.NoError(t, err)

	late := f.paid(t, settlement.MethodCash, "450.00", "50.00", shiftStart.Add(2*time.Hour))
	f.clock.Advance(time.Minute)
	second, err := f.svc.Close(ctx, supervisor, closeReq("950.00"))
	require.NoError(t, err)
	assert.Equal(t, "CC-20260301-0002", second.Number)
	assert.Equal(t, []snowflake.ID{late}, second.OrderIDs)
	assert.True(t, money("450.00").Equal(second.CashSales))
	assert.True(t, second.Variance.IsZero())

	req := closeReq("1400.00")
	req.OrderIDs = []snowflake.ID{first}
	_, err = f.svc.Close(ctx, supervisor, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAggregationConflict))
	var conflict domain.AggregationConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []snowflake.ID{first}, conflict.OrderIDs)

	var closings int64
	require.NoError(t, f.db.Model(&domain.CashClosing{}).Count(&closings).Error)
	assert.Equal(t, int64(2), closings)
}

func TestCloseExplicitOrdersAreValidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok := f.paid(t, settlement.MethodCard, "300.00", "0", shiftStart.Add(time.Hour))
	open := f.order(t, orderdomain.StateReady, "", "200.00", "0", shiftStart.Add(time.Hour))
	early := f.paid(t, settlement.MethodCard, "150.00", "0", shiftStart.Add(-time.Hour))

	req := closeReq("500.00")
	req.OrderIDs = []snowflake.ID{ok, open, early, snowflake.ID(999999)}
	_, err := f.svc.Close(ctx, supervisor, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerr.ErrValidation))

	var verrs domainerr.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	codes := map[string]bool{}
	for _, v := range verrs {
		codes[v.Code] = true
	}
	assert.True(t, codes["order_not_paid"])
	assert.True(t, codes["outside_window"])
	assert.True(t, codes["order_not_found"])

	req.OrderIDs = []snowflake.ID{ok, ok}
	closing, err := f.svc.Close(ctx, supervisor, req)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{ok}, closing.OrderIDs)
	assert.True(t, money("300.00").Equal(closing.TotalSales))
	assert.True(t, closing.CashSales.IsZero())
}

func TestCloseExplicitEmptySelectionClaimsNothing(t *testing.T) {
	f := newFixture(t)
	f.paid(t, settlement.MethodCash, "900.00", "100.00", shiftStart.Add(time.Hour))

	req := closeReq("500.00")
	req.OrderIDs = []snowflake.ID{}
	closing, err := f.svc.Close(context.Background(), supervisor, req)
	require.NoError(t, err)
	assert.Equal(t, 0, closing.OrderCount)
	assert.Empty(t, closing.Totals)
	assert.True(t, closing.Variance.IsZero())
}

func TestCloseValidatesRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := closeReq("0")
	req.WindowEnd = req.WindowStart
	_, err := f.svc.Close(ctx, supervisor, req)
	assert.True(t, errors.Is(err, domainerr.ErrValidation))

	req = closeReq("0")
	req.OpeningFloat = money("-1")
	_, err = f.svc.Close(ctx, supervisor, req)
	assert.True(t, errors.Is(err, domainerr.ErrValidation))

	req = closeReq("0")
	req.CountedCash = nil
	_, err = f.svc.Close(ctx, supervisor, req)
	assert.True(t, errors.Is(err, domainerr.ErrValidation))

	req = closeReq("1000.00")
	req.Denominations = []domain.Denomination{{Value: money("500"), Count: 1}}
	_, err = f.svc.Close(ctx, supervisor, req)
	assert.True(t, errors.Is(err, domainerr.ErrValidation))

	_, err = f.svc.Close(ctx, actor.Actor{}, closeReq("0"))
	assert.True(t, errors.Is(err, domainerr.ErrValidation))
}

func TestCloseFromDenominations(t *testing.T) {
	f := newFixture(t)
	f.paid(t, settlement.MethodCash, "1350.00", "150.00", shiftStart.Add(time.Hour))

	req := closeReq("0")
	req.CountedCash = nil
	req.Denominations = []domain.Denomination{
		{Value: money("1000"), Count: 1},
		{Value: money("500"), Count: 1},
		{Value: money("100"), Count: 3},
	}
	closing, err := f.svc.Close(context.Background(), supervisor, req)
	require.NoError(t, err)
	assert.True(t, money("1800.00").Equal(closing.CountedCash))
	assert.True(t, money("-50.00").Equal(closing.Variance))
	assert.Len(t, closing.Denominations, 3)
}

func TestReviewAdvancesOneStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closing, err := f.svc.Close(ctx, supervisor, closeReq("500.00"))
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, supervisor, closing.ID, domain.ReviewRequest{Status: domain.StatusAudited})
	var illegal domainerr.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, "CLOSED", illegal.Current)

	reviewed, err := f.svc.Review(ctx, supervisor, closing.ID, domain.ReviewRequest{Status: "reviewed", Notes: "drawer recounted"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReviewed, reviewed.Status)
	assert.Contains(t, reviewed.Notes, "drawer recounted")

	audited, err := f.svc.Review(ctx, supervisor, closing.ID, domain.ReviewRequest{Status: domain.StatusAudited, Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAudited, audited.Status)
	assert.Contains(t, audited.Notes, "drawer recounted")
	assert.Contains(t, audited.Notes, "ok")

	_, err = f.svc.Review(ctx, supervisor, closing.ID, domain.ReviewRequest{Status: domain.StatusAudited})
	assert.True(t, errors.Is(err, domainerr.ErrIllegalTransition))

	_, err = f.svc.Review(ctx, supervisor, closing.ID, domain.ReviewRequest{Status: "bogus"})
	assert.True(t, errors.Is(err, domainerr.ErrValidation))

	stored, err := f.svc.Get(ctx, closing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAudited, stored.Status)
	assert.True(t, closing.ExpectedCash.Equal(stored.ExpectedCash))

	_, err = f.svc.Review(ctx, supervisor, snowflake.ID(42), domain.ReviewRequest{Status: domain.StatusReviewed})
	assert.True(t, errors.Is(err, domainerr.ErrNotFound))
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Close(ctx, supervisor, closeReq("500.00"))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Close(ctx, supervisor, closeReq("500.00"))
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, supervisor, first.ID, domain.ReviewRequest{Status: domain.StatusReviewed})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, domain.ListClosingsRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Closings, 2)
	assert.False(t, all.HasMore)

	reviewed, err := f.svc.List(ctx, domain.ListClosingsRequest{Status: domain.StatusReviewed})
	require.NoError(t, err)
	require.Len(t, reviewed.Closings, 1)
	assert.Equal(t, first.ID, reviewed.Closings[0].ID)

	_, err = f.svc.List(ctx, domain.ListClosingsRequest{Status: "nope"})
	assert.True(t, errors.Is(err, domainerr.ErrValidation))
}

func TestConcurrentClosesClaimDisjointOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := make([]snowflake.ID, 0, 10)
	for i := 0; i < 10; i++ {
		paid = append(paid, f.paid(t, settlement.MethodCash, "100.00", "10.00", shiftStart.Add(time.Duration(i+1)*time.Minute)))
	}

	const workers = 4
	var wg sync.WaitGroup
	results := make([]domain.CashClosing, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Close(ctx, supervisor, closeReq("1500.00"))
		}(i)
	}
	wg.Wait()

	owner := map[snowflake.ID]snowflake.ID{}
	succeeded := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Logf("close %d lost the race: %v", i, errs[i])
			continue
		}
		succeeded++
		for _, id := range results[i].OrderIDs {
			prev, taken := owner[id]
			assert.False(t, taken, "order %s in closings %s and %s", id, prev, results[i].ID)
			owner[id] = results[i].ID
		}
	}
	require.GreaterOrEqual(t, succeeded, 1)

	// Whatever the racing closes left behind is still claimable exactly once.
	f.clock.Advance(time.Minute)
	rest, err := f.svc.Close(ctx, supervisor, closeReq("500.00"))
	require.NoError(t, err)
	for _, id := range rest.OrderIDs {
		_, taken := owner[id]
		assert.False(t, taken, "order %s claimed twice", id)
		owner[id] = rest.ID
	}
	assert.Len(t, owner, len(paid))

	var claims int64
	require.NoError(t, f.db.Model(&domain.ClosingOrder{}).Count(&claims).Error)
	assert.Equal(t, int64(len(paid)), claims)
}
