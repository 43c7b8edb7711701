package settlement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lines(prices ...string) []Line {
	out := make([]Line, 0, len(prices))
	for _, p := range prices {
		out = append(out, Line{Quantity: 1, UnitPrice: d(p)})
	}
	return out
}

func TestComputeCashScenario(t *testing.T) {
	got, err := Compute(lines("1200", "300"), MethodCash, d("1400"))
	require.NoError(t, err)

	assert.True(t, got.Subtotal.Equal(d("1500")), got.Subtotal.String())
	assert.True(t, got.Discount.Equal(d("150")), got.Discount.String())
	assert.True(t, got.Total.Equal(d("1350")), got.Total.String())
	assert.True(t, got.Change.Equal(d("50")), got.Change.String())
}

func TestDiscountValueTable(t *testing.T) {
	cases := []struct {
		subtotal string
		method   Method
		want     string
	}{
		{"0", MethodCash, "0"},
		{"1500", MethodCash, "150"},
		{"10.05", MethodCash, "1.01"},
		{"10.04", MethodCash, "1"},
		{"99.999", MethodCash, "10"},
		{"0.004", MethodCash, "0"},
		{"123.455", MethodCash, "12.35"},
		{"1500", MethodCard, "0"},
		{"1500", MethodTransfer, "0"},
		{"1500", MethodQR, "0"},
		{"0.001", MethodCard, "0"},
	}
	for _, tc := range cases {
		t.Run(string(tc.method)+"_"+tc.subtotal, func(t *testing.T) {
			got := Discount(d(tc.subtotal), tc.method)
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
			if tc.method == MethodCash {
				assert.True(t, got.Equal(d(tc.subtotal).Mul(d("0.10")).Round(2)))
			}
		})
	}
}

func TestComputeRoundsOnceNotPerLine(t *testing.T) {
	// three lines of 0.335 each: per-line rounding would give 1.02, once gives 1.01
	in := []Line{{Quantity: 3, UnitPrice: d("0.335")}}
	got, err := Compute(in, MethodCard, d("5"))
	require.NoError(t, err)
	assert.True(t, got.Subtotal.Equal(d("1.01")), got.Subtotal.String())
	assert.True(t, got.Total.Equal(d("1.01")))
	assert.True(t, got.Change.Equal(d("3.99")))
}

func TestComputeDiscountComesFromRawSum(t *testing.T) {
	got, err := Compute([]Line{{Quantity: 1, UnitPrice: d("0.045")}}, MethodCash, d("1"))
	require.NoError(t, err)

	assert.True(t, got.Subtotal.Equal(d("0.05")), got.Subtotal.String())
	assert.True(t, got.Discount.IsZero(), got.Discount.String())
	assert.True(t, got.Total.Equal(d("0.05")), got.Total.String())
	assert.False(t, got.Discount.Equal(got.Subtotal.Mul(CashDiscountRate).Round(2)))
}

func TestComputeTotalIsSubtotalMinusDiscount(t *testing.T) {
	for _, price := range []string{"0", "0.01", "7.77", "19.999", "1234.565", "100000"} {
		for _, method := range Methods {
			got, err := Compute(lines(price), method, d("1000000"))
			require.NoError(t, err)
			assert.True(t, got.Total.Equal(got.Subtotal.Sub(got.Discount)))
			assert.True(t, got.Change.Equal(got.Tendered.Sub(got.Total)))
			assert.False(t, got.Change.IsNegative())
		}
	}
}

func TestComputeRejectsInsufficientPayment(t *testing.T) {
	_, err := Compute(lines("1200", "300"), MethodCash, d("1349.99"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientPayment))

	var insufficient *InsufficientPaymentError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Total.Equal(d("1350")))

	exact, err := Compute(lines("1200", "300"), MethodCard, d("1500"))
	require.NoError(t, err)
	assert.True(t, exact.Change.IsZero())
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := Compute(lines("10"), Method("cheque"), d("10"))
	assert.ErrorIs(t, err, ErrInvalidMethod)

	_, err = Compute(lines("10"), MethodCash, d("-1"))
	assert.ErrorIs(t, err, ErrInvalidTendered)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" CASH ")
	assert.NoError(t, err)
	assert.Equal(t, MethodCash, m)

	_, err = ParseMethod("bitcoin")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}
