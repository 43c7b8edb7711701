package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/settlement"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
	"gorm.io/gorm"
)

type LineInput struct {
	// LineID keeps an existing line (and its price snapshot) during edits.
	LineID    *snowflake.ID `json:"line_id,omitempty"`
	ProductID snowflake.ID  `json:"product_id"`
	Quantity  int64         `json:"quantity"`
	Note      string        `json:"note,omitempty"`
}

type CreateOrderRequest struct {
	TableNumber int         `json:"table_number"`
	Lines       []LineInput `json:"lines"`
	Notes       string      `json:"notes,omitempty"`
}

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Table   int    `json:"table,omitempty"`
}

type CreateOrderResult struct {
	Order    Order     `json:"order"`
	Warnings []Warning `json:"warnings,omitempty"`
}

type ChangeStateRequest struct {
	State State  `json:"state"`
	Note  string `json:"note,omitempty"`
}

type EditLinesRequest struct {
	Lines []LineInput `json:"lines"`
}

type SettleRequest struct {
	Method   settlement.Method `json:"method"`
	Tendered decimal.Decimal   `json:"tendered"`
}

// Receipt is what the cashier hands over after settlement.
type Receipt struct {
	OrderID     snowflake.ID      `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	TableNumber int               `json:"table_number"`
	WaiterName  string            `json:"waiter_name"`
	Lines       []Line            `json:"lines"`
	Method      settlement.Method `json:"method"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Discount    decimal.Decimal   `json:"discount"`
	Total       decimal.Decimal   `json:"total"`
	Tendered    decimal.Decimal   `json:"tendered"`
	Change      decimal.Decimal   `json:"change"`
	Cashier     actor.Actor       `json:"cashier"`
	PaidAt      time.Time         `json:"paid_at"`
	Order       Order             `json:"order"`
}

type ListOrdersRequest struct {
	pagination.Pagination
	States       []State
	TableNumber  int
	WaiterID     string
	From         *time.Time
	To           *time.Time
	UpdatedSince *time.Time
}

type ListOrdersResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
	// PollAfterSeconds tells clients when to poll again as a backstop for
	// dropped push events.
	PollAfterSeconds int `json:"poll_after_seconds"`
}

type Service interface {
	Create(ctx context.Context, a actor.Actor, req CreateOrderRequest) (CreateOrderResult, error)
	ChangeState(ctx context.Context, a actor.Actor, id snowflake.ID, req ChangeStateRequest) (Order, error)
	EditLines(ctx context.Context, a actor.Actor, id snowflake.ID, req EditLinesRequest) (Order, error)
	Settle(ctx context.Context, a actor.Actor, id snowflake.ID, req SettleRequest) (Receipt, error)
	Cancel(ctx context.Context, a actor.Actor, id snowflake.ID, reason string) (Order, error)
	Get(ctx context.Context, id snowflake.ID) (Order, error)
	List(ctx context.Context, req ListOrdersRequest) (ListOrdersResponse, error)
}

type ListFilter struct {
	States       []State
	TableNumber  int
	WaiterID     string
	From         *time.Time
	To           *time.Time
	UpdatedSince *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Order, error)
	// Update writes the mutable columns only while the stored version still
	// equals expectedVersion and the stored state is not terminal. It
	// reports false when the guard did not match.
	Update(ctx context.Context, db *gorm.DB, order *Order, expectedVersion int64) (bool, error)
	AppendHistory(ctx context.Context, db *gorm.DB, entry *HistoryEntry) error
	ReplaceLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID, lines []Line) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]Order, error)
	CountActiveByTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID) (int64, error)
}

type ChangeKind string

const (
	KindCreated      ChangeKind = "order.created"
	KindStateChanged ChangeKind = "order.state_changed"
	KindLinesUpdated ChangeKind = "order.lines_updated"
	KindSettled      ChangeKind = "order.settled"
)

// Change is one committed mutation, handed to the publisher after commit.
type Change struct {
	Kind          ChangeKind
	Order         Order
	PreviousState State
	Actor         actor.Actor
	OccurredAt    time.Time
}

type Publisher interface {
	Publish(ctx context.Context, change Change)
}
