package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/closing/domain"
	"github.com/smallbiznis/comanda/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func closingFixture(id snowflake.ID, number string, orders ...snowflake.ID) *domain.CashClosing {
	at := time.Date(2026, 3, 1, 23, 10, 0, 0, time.UTC)
	return &domain.CashClosing{
		ID:             id,
		Number:         number,
		WindowStart:    at.Add(-11 * time.Hour),
		WindowEnd:      at.Add(-10 * time.Minute),
		OpeningFloat:   decimal.Zero,
		CashSales:      decimal.Zero,
		TotalSales:     decimal.Zero,
		TotalDiscounts: decimal.Zero,
		ExpectedCash:   decimal.Zero,
		CountedCash:    decimal.Zero,
		Variance:       decimal.Zero,
		OrderCount:     len(orders),
		Status:         domain.StatusClosed,
		ClosedBy:       actor.Actor{ID: "c-2", Role: actor.RoleCashier, Name: "Ana"},
		OrderIDs:       orders,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestInsertRejectsAlreadyClaimedOrder(t *testing.T) {
	db := testkit.OpenDB(t)
	ctx := context.Background()
	r := Provide()

	err := db.Transaction(func(tx *gorm.DB) error {
		return r.Insert(ctx, tx, closingFixture(1, "CC-1", 10, 11))
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return r.Insert(ctx, tx, closingFixture(2, "CC-2", 11, 12))
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAggregationConflict))
	var conflict domain.AggregationConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Contains(t, conflict.OrderIDs, snowflake.ID(11))

	var closings, claims int64
	require.NoError(t, db.Model(&domain.CashClosing{}).Count(&closings).Error)
	require.NoError(t, db.Model(&domain.ClosingOrder{}).Count(&claims).Error)
	assert.Equal(t, int64(1), closings)
	assert.Equal(t, int64(2), claims)
}
