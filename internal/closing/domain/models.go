package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/settlement"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusClosed   Status = "CLOSED"
	StatusReviewed Status = "REVIEWED"
	StatusAudited  Status = "AUDITED"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusClosed, StatusReviewed, StatusAudited:
		return s, true
	default:
		return "", false
	}
}

// Next is the only status a review may move to; Audited is final.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusClosed:
		return StatusReviewed, true
	case StatusReviewed:
		return StatusAudited, true
	default:
		return "", false
	}
}

// CashClosing is the immutable end-of-shift reconciliation. Only Status and
// Notes change after creation.
type CashClosing struct {
	ID             snowflake.ID                      `json:"id" gorm:"primaryKey"`
	Number         string                            `json:"number" gorm:"size:40;uniqueIndex;not null"`
	ShiftLabel     string                            `json:"shift_label,omitempty" gorm:"size:80;index"`
	WindowStart    time.Time                         `json:"window_start" gorm:"not null"`
	WindowEnd      time.Time                         `json:"window_end" gorm:"not null"`
	OpeningFloat   decimal.Decimal                   `json:"opening_float" gorm:"type:numeric(12,2);not null"`
	CashSales      decimal.Decimal                   `json:"cash_sales" gorm:"type:numeric(12,2);not null"`
	TotalSales     decimal.Decimal                   `json:"total_sales" gorm:"type:numeric(12,2);not null"`
	TotalDiscounts decimal.Decimal                   `json:"total_discounts" gorm:"type:numeric(12,2);not null"`
	ExpectedCash   decimal.Decimal                   `json:"expected_cash" gorm:"type:numeric(12,2);not null"`
	CountedCash    decimal.Decimal                   `json:"counted_cash" gorm:"type:numeric(12,2);not null"`
	Variance       decimal.Decimal                   `json:"variance" gorm:"type:numeric(12,2);not null"`
	Denominations  datatypes.JSONSlice[Denomination] `json:"denominations,omitempty"`
	OrderCount     int                               `json:"order_count" gorm:"not null"`
	Notes          string                            `json:"notes,omitempty" gorm:"type:text"`
	Status         Status                            `json:"status" gorm:"size:16;not null;index"`
	ClosedBy       actor.Actor                       `json:"closed_by" gorm:"embedded;embeddedPrefix:closed_by_"`
	Totals         []MethodTotal                     `json:"totals" gorm:"-"`
	OrderIDs       []snowflake.ID                    `json:"order_ids" gorm:"-"`
	CreatedAt      time.Time                         `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time                         `json:"updated_at"`
}

func (CashClosing) TableName() string { return "cash_closings" }

type MethodTotal struct {
	ClosingID  snowflake.ID      `json:"-" gorm:"primaryKey"`
	Method     settlement.Method `json:"method" gorm:"primaryKey;size:16"`
	Amount     decimal.Decimal   `json:"amount" gorm:"type:numeric(12,2);not null"`
	OrderCount int               `json:"order_count" gorm:"not null"`
}

func (MethodTotal) TableName() string { return "cash_closing_totals" }

// ClosingOrder claims an order for exactly one closing. The primary key on
// OrderID is what makes two closings unable to share an order.
type ClosingOrder struct {
	OrderID   snowflake.ID `gorm:"primaryKey"`
	ClosingID snowflake.ID `gorm:"index;not null"`
	CreatedAt time.Time
}

func (ClosingOrder) TableName() string { return "cash_closing_orders" }

type Denomination struct {
	Value decimal.Decimal `json:"value"`
	Count int64           `json:"count"`
}

// SettledOrder is the slice of a paid order the aggregation needs.
type SettledOrder struct {
	ID       snowflake.ID
	Method   settlement.Method
	Total    decimal.Decimal
	Discount decimal.Decimal
	PaidAt   time.Time
}
