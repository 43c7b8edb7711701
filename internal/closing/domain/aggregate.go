package domain

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/settlement"
)

type Totals struct {
	ByMethod       []MethodTotal
	TotalSales     decimal.Decimal
	TotalDiscounts decimal.Decimal
	CashSales      decimal.Decimal
	ExpectedCash   decimal.Decimal
	Variance       decimal.Decimal
	OrderCount     int
}

// Aggregate partitions orders by payment method and balances the drawer:
// expected = opening float + cash sales, variance = counted - expected.
func Aggregate(orders []SettledOrder, openingFloat, countedCash decimal.Decimal) Totals {
	sums := map[settlement.Method]decimal.Decimal{}
	counts := map[settlement.Method]int{}
	discounts := decimal.Zero
	for _, o := range orders {
		sums[o.Method] = sums[o.Method].Add(o.Total)
		counts[o.Method]++
		discounts = discounts.Add(o.Discount)
	}

	totals := Totals{
		TotalDiscounts: discounts,
		TotalSales:     decimal.Zero,
		OrderCount:     len(orders),
	}
	for _, method := range orderedMethods(counts) {
		totals.ByMethod = append(totals.ByMethod, MethodTotal{
			Method:     method,
			Amount:     sums[method],
			OrderCount: counts[method],
		})
		totals.TotalSales = totals.TotalSales.Add(sums[method])
	}

	totals.CashSales = sums[settlement.MethodCash]
	totals.ExpectedCash = openingFloat.Add(totals.CashSales)
	totals.Variance = countedCash.Sub(totals.ExpectedCash)
	return totals
}

// orderedMethods keeps the reporting order of settlement.Methods and appends
// anything unknown at the end.
func orderedMethods(counts map[settlement.Method]int) []settlement.Method {
	out := make([]settlement.Method, 0, len(counts))
	known := map[settlement.Method]bool{}
	for _, m := range settlement.Methods {
		known[m] = true
		if counts[m] > 0 {
			out = append(out, m)
		}
	}
	for m := range counts {
		if !known[m] {
			out = append(out, m)
		}
	}
	return out
}

// VarianceKind labels a variance as exact, surplus or shortage.
func VarianceKind(variance decimal.Decimal) string {
	switch variance.Sign() {
	case 1:
		return "surplus"
	case -1:
		return "shortage"
	default:
		return "exact"
	}
}

// CountDenominations totals a drawer count given as value × count pairs.
func CountDenominations(ds []Denomination) (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, d := range ds {
		if !d.Value.IsPositive() || d.Count < 0 {
			return decimal.Zero, false
		}
		total = total.Add(d.Value.Mul(decimal.NewFromInt(d.Count)))
	}
	return total, true
}
