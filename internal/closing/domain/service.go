package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrClosingNotFound     = domainerr.NotFound("closing_not_found")
	ErrAggregationConflict = errors.New("aggregation_conflict")
)

// AggregationConflictError lists orders that already belong to a closing.
type AggregationConflictError struct {
	OrderIDs []snowflake.ID
}

func (e AggregationConflictError) Error() string {
	ids := make([]string, 0, len(e.OrderIDs))
	for _, id := range e.OrderIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("aggregation_conflict: orders already closed: %s", strings.Join(ids, ","))
}

func (e AggregationConflictError) Is(target error) bool {
	return target == ErrAggregationConflict
}

type CloseShiftRequest struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ShiftLabel  string    `json:"shift_label,omitempty"`
	// OrderIDs nil selects every unclosed paid order in the window.
	OrderIDs      []snowflake.ID   `json:"included_order_ids,omitempty"`
	OpeningFloat  decimal.Decimal  `json:"opening_float"`
	CountedCash   *decimal.Decimal `json:"counted_cash,omitempty"`
	Denominations []Denomination   `json:"denominations,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

type ReviewRequest struct {
	Status Status `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type ListClosingsRequest struct {
	pagination.Pagination
	Status     Status
	ShiftLabel string
	From       *time.Time
	To         *time.Time
}

type ListClosingsResponse struct {
	pagination.PageInfo
	Closings []CashClosing `json:"closings"`
}

type Service interface {
	Close(ctx context.Context, a actor.Actor, req CloseShiftRequest) (CashClosing, error)
	Review(ctx context.Context, a actor.Actor, id snowflake.ID, req ReviewRequest) (CashClosing, error)
	Get(ctx context.Context, id snowflake.ID) (CashClosing, error)
	List(ctx context.Context, req ListClosingsRequest) (ListClosingsResponse, error)
}

// PaidOrder is a locked order row as read for a closing.
type PaidOrder struct {
	SettledOrder
	State string
}

type ListFilter struct {
	Status     Status
	ShiftLabel string
	From       *time.Time
	To         *time.Time
}

type Repository interface {
	// LockPaidInWindow locks every paid order with paid_at in [start, end).
	LockPaidInWindow(ctx context.Context, db *gorm.DB, start, end time.Time) ([]SettledOrder, error)
	// LockOrders locks the given orders whatever their state.
	LockOrders(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]PaidOrder, error)
	// ClaimedAmong returns the subset of ids already attached to a closing.
	ClaimedAmong(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]snowflake.ID, error)
	Insert(ctx context.Context, db *gorm.DB, closing *CashClosing) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*CashClosing, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]CashClosing, error)
	UpdateReview(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, notes string, at time.Time) (bool, error)
}
