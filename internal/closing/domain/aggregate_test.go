package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregateBalancesDrawer(t *testing.T) {
	paid := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	orders := []SettledOrder{
		{ID: snowflake.ID(1), Method: settlement.MethodCard, Total: d("2000.00"), PaidAt: paid},
		{ID: snowflake.ID(2), Method: settlement.MethodCash, Total: d("1350.00"), Discount: d("150.00"), PaidAt: paid},
		{ID: snowflake.ID(3), Method: settlement.MethodQR, Total: d("500.00"), PaidAt: paid},
		{ID: snowflake.ID(4), Method: settlement.MethodCash, Total: d("270.00"), Discount: d("30.00"), PaidAt: paid},
	}

	totals := Aggregate(orders, d("500.00"), d("2100.00"))

	require.Len(t, totals.ByMethod, 3)
	assert.Equal(t, settlement.MethodCash, totals.ByMethod[0].Method)
	assert.True(t, d("1620.00").Equal(totals.ByMethod[0].Amount))
	assert.Equal(t, 2, totals.ByMethod[0].OrderCount)
	assert.Equal(t, settlement.MethodCard, totals.ByMethod[1].Method)
	assert.Equal(t, settlement.MethodQR, totals.ByMethod[2].Method)

	assert.True(t, d("4120.00").Equal(totals.TotalSales))
	assert.True(t, d("180.00").Equal(totals.TotalDiscounts))
	assert.True(t, d("1620.00").Equal(totals.CashSales))
	assert.True(t, d("2120.00").Equal(totals.ExpectedCash))
	assert.True(t, d("-20.00").Equal(totals.Variance))
	assert.Equal(t, 4, totals.OrderCount)

	sum := decimal.Zero
	for _, m := range totals.ByMethod {
		sum = sum.Add(m.Amount)
	}
	assert.True(t, sum.Equal(totals.TotalSales))
	assert.True(t, totals.ExpectedCash.Add(totals.Variance).Equal(d("2100.00")))
}

func TestAggregateEmptyWindow(t *testing.T) {
	totals := Aggregate(nil, d("500.00"), d("480.00"))

	assert.Empty(t, totals.ByMethod)
	assert.True(t, totals.TotalSales.IsZero())
	assert.True(t, totals.CashSales.IsZero())
	assert.True(t, d("500.00").Equal(totals.ExpectedCash))
	assert.True(t, d("-20.00").Equal(totals.Variance))
	assert.Equal(t, 0, totals.OrderCount)
}

func TestVarianceKind(t *testing.T) {
	assert.Equal(t, "exact", VarianceKind(decimal.Zero))
	assert.Equal(t, "surplus", VarianceKind(d("0.01")))
	assert.Equal(t, "shortage", VarianceKind(d("-15.50")))
}

func TestCountDenominations(t *testing.T) {
	total, ok := CountDenominations([]Denomination{
		{Value: d("1000"), Count: 1},
		{Value: d("500"), Count: 1},
		{Value: d("100"), Count: 3},
		{Value: d("50"), Count: 1},
	})
	require.True(t, ok)
	assert.True(t, d("1850").Equal(total))

	_, ok = CountDenominations([]Denomination{{Value: d("0"), Count: 1}})
	assert.False(t, ok)
	_, ok = CountDenominations([]Denomination{{Value: d("100"), Count: -1}})
	assert.False(t, ok)
}

func TestStatusNext(t *testing.T) {
	next, ok := StatusClosed.Next()
	require.True(t, ok)
	assert.Equal(t, StatusReviewed, next)

	next, ok = StatusReviewed.Next()
	require.True(t, ok)
	assert.Equal(t, StatusAudited, next)

	_, ok = StatusAudited.Next()
	assert.False(t, ok)

	_, ok = ParseStatus("closed")
	assert.False(t, ok)
}
