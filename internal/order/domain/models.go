package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/settlement"
)

// MaxLineQuantity bounds a single line; larger quantities are typos.
const MaxLineQuantity = 999

// Order is one tab opened against a table. Lines and History are loaded
// alongside the row and persisted in their own tables.
type Order struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	Number      string          `json:"number" gorm:"size:32;uniqueIndex;not null"`
	TableID     snowflake.ID    `json:"table_id" gorm:"index;not null"`
	TableNumber int             `json:"table_number" gorm:"not null"`
	Waiter      actor.Actor     `json:"waiter" gorm:"embedded;embeddedPrefix:waiter_"`
	State       State           `json:"state" gorm:"size:16;not null;index"`
	Lines       []Line          `json:"lines" gorm:"-"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
	Discount    Discount        `json:"discount" gorm:"embedded;embeddedPrefix:discount_"`
	Total       decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`
	Payment     Payment         `json:"payment" gorm:"embedded;embeddedPrefix:payment_"`
	Notes       string          `json:"notes,omitempty" gorm:"type:text"`
	History     []HistoryEntry  `json:"history" gorm:"-"`
	Version     int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"index"`
}

func (Order) TableName() string { return "orders" }

type Discount struct {
	Method *settlement.Method `json:"method,omitempty" gorm:"size:16"`
	Amount decimal.Decimal    `json:"amount" gorm:"type:numeric(12,2);not null"`
}

// Payment is empty until the order is settled.
type Payment struct {
	Method      *settlement.Method  `json:"method,omitempty" gorm:"size:16;index"`
	Tendered    decimal.NullDecimal `json:"tendered" gorm:"type:numeric(12,2)"`
	Change      decimal.NullDecimal `json:"change" gorm:"type:numeric(12,2)"`
	CashierID   *string             `json:"cashier_id,omitempty" gorm:"size:64"`
	CashierName *string             `json:"cashier_name,omitempty" gorm:"size:120"`
	PaidAt      *time.Time          `json:"paid_at,omitempty" gorm:"index"`
}

// Line snapshots the product name and price at order time.
type Line struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID   snowflake.ID    `json:"-" gorm:"index;not null"`
	Position  int             `json:"position" gorm:"not null"`
	ProductID snowflake.ID    `json:"product_id" gorm:"not null"`
	Name      string          `json:"name" gorm:"size:160;not null"`
	Quantity  int64           `json:"quantity" gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
	Note      string          `json:"note,omitempty" gorm:"size:255"`
}

func (Line) TableName() string { return "order_lines" }

type HistoryEntry struct {
	ID         uint64       `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID    snowflake.ID `json:"-" gorm:"index;not null"`
	Seq        int          `json:"seq" gorm:"not null"`
	State      State        `json:"state" gorm:"size:16;not null"`
	Actor      actor.Actor  `json:"actor" gorm:"embedded;embeddedPrefix:actor_"`
	Note       string       `json:"note,omitempty" gorm:"size:500"`
	OccurredAt time.Time    `json:"occurred_at" gorm:"not null"`
}

func (HistoryEntry) TableName() string { return "order_state_history" }

// SettlementLines adapts the line snapshots for the payment calculator.
func (o *Order) SettlementLines() []settlement.Line {
	lines := make([]settlement.Line, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, settlement.Line{Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}
	return lines
}

// Reprice recomputes the open-order amounts from the lines. Discounts only
// exist after settlement, so an open order has total == subtotal.
func (o *Order) Reprice() {
	for i := range o.Lines {
		o.Lines[i].Subtotal = o.Lines[i].UnitPrice.Mul(decimal.NewFromInt(o.Lines[i].Quantity))
	}
	o.Subtotal = settlement.Subtotal(o.SettlementLines())
	o.Discount = Discount{Amount: decimal.Zero}
	o.Total = o.Subtotal
}

// ApplySettlement freezes the monetary fields from a computed breakdown.
func (o *Order) ApplySettlement(b settlement.Breakdown, cashier actor.Actor, at time.Time) {
	method := b.Method
	o.Subtotal = b.Subtotal
	o.Discount = Discount{Amount: b.Discount}
	if method == settlement.MethodCash {
		o.Discount.Method = &method
	}
	o.Total = b.Total
	o.Payment = Payment{
		Method:      &method,
		Tendered:    decimal.NewNullDecimal(b.Tendered),
		Change:      decimal.NewNullDecimal(b.Change),
		CashierID:   &cashier.ID,
		CashierName: &cashier.Name,
		PaidAt:      &at,
	}
}
