// Package settlement computes what a guest owes. Everything here is pure so
// the arithmetic can be checked exhaustively against value tables.
package settlement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash     Method = "cash"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
	MethodQR       Method = "qr"
)

// Methods lists every accepted payment method in reporting order.
var Methods = []Method{MethodCash, MethodCard, MethodTransfer, MethodQR}

// CashDiscountRate is applied to the subtotal of cash settlements.
var CashDiscountRate = decimal.RequireFromString("0.10")

const moneyPlaces = 2

var (
	ErrInvalidMethod   = errors.New("invalid_payment_method")
	ErrInvalidTendered = errors.New("invalid_tendered_amount")
)

// InsufficientPaymentError means the tendered amount does not cover the total.
type InsufficientPaymentError struct {
	Total    decimal.Decimal
	Tendered decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient_payment: tendered %s < total %s", money(e.Tendered), money(e.Total))
}

var ErrInsufficientPayment = errors.New("insufficient_payment")

func (e *InsufficientPaymentError) Is(target error) bool {
	return target == ErrInsufficientPayment
}

func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", ErrInvalidMethod
}

// Line is the minimum a calculator needs from an order line.
type Line struct {
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Breakdown is the outcome of a settlement computation.
type Breakdown struct {
	Method   Method          `json:"method"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Tendered decimal.Decimal `json:"tendered"`
	Change   decimal.Decimal `json:"change"`
}

// RawSubtotal sums quantity × unit price without rounding.
func RawSubtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return sum
}

// Subtotal is the stored subtotal: the raw sum rounded once to cents.
func Subtotal(lines []Line) decimal.Decimal {
	return RawSubtotal(lines).Round(moneyPlaces)
}

// Discount is 10% of the raw subtotal for cash, zero otherwise, rounded once.
func Discount(rawSubtotal decimal.Decimal, method Method) decimal.Decimal {
	if method != MethodCash {
		return decimal.Zero
	}
	return rawSubtotal.Mul(CashDiscountRate).Round(moneyPlaces)
}

// Compute turns lines, a payment method and a tendered amount into a
// settlement breakdown. Rounding happens once per figure, in this order:
// subtotal = round(raw, 2), discount = round(raw × 0.10, 2) taken from the
// unrounded raw sum, then total = subtotal - discount with no further
// rounding. When raw carries three or more decimals the discount therefore
// need not equal round(subtotal × 0.10, 2): raw 0.045 yields subtotal 0.05
// and discount 0.00. Catalog prices have two decimals, so stored orders
// never hit that case.
func Compute(lines []Line, method Method, tendered decimal.Decimal) (Breakdown, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return Breakdown{}, err
	}
	if tendered.IsNegative() {
		return Breakdown{}, ErrInvalidTendered
	}

	raw := RawSubtotal(lines)
	subtotal := raw.Round(moneyPlaces)
	discount := Discount(raw, method)
	total := subtotal.Sub(discount)

	tendered = tendered.Round(moneyPlaces)
	if tendered.LessThan(total) {
		return Breakdown{}, &InsufficientPaymentError{Total: total, Tendered: tendered}
	}

	change := tendered.Sub(total)
	if change.IsNegative() {
		change = decimal.Zero
	}

	return Breakdown{
		Method:   method,
		Subtotal: subtotal,
		Discount: discount,
		Total:    total,
		Tendered: tendered,
		Change:   change,
	}, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}
