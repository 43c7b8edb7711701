package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"gorm.io/gorm"
)

type State string

const (
	StateFree     State = "FREE"
	StateOccupied State = "OCCUPIED"
	StateReserved State = "RESERVED"
)

func (s State) Valid() bool {
	switch s {
	case StateFree, StateOccupied, StateReserved:
		return true
	default:
		return false
	}
}

// Table is a physical seating location referenced by orders.
type Table struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Number       int          `json:"number" gorm:"uniqueIndex;not null"`
	Capacity     int          `json:"capacity" gorm:"not null;default:4"`
	Location     string       `json:"location" gorm:"size:80"`
	LocationSlug string       `json:"location_slug" gorm:"size:80;index"`
	State        State        `json:"state" gorm:"size:16;not null;index"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Table) TableName() string { return "dining_tables" }

// NextState derives occupancy from the number of non-terminal orders seated
// at the table. A reservation survives housekeeping while no order is open.
func NextState(current State, activeOrders int64) State {
	if activeOrders > 0 {
		return StateOccupied
	}
	if current == StateReserved {
		return StateReserved
	}
	return StateFree
}

var (
	ErrTableNotFound = domainerr.NotFound("table_not_found")
	ErrTableReserved = domainerr.Conflict("table_reserved")
	ErrTableOccupied = domainerr.Conflict("table_occupied")
)

// ActiveOrderCounter counts non-terminal orders for a table inside tx.
type ActiveOrderCounter func(ctx context.Context, tx *gorm.DB, tableID snowflake.ID) (int64, error)

type SeatResult struct {
	Table       Table
	WasReserved bool
}

type ListRequest struct {
	State    State
	Location string
}

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Table, error)
	Get(ctx context.Context, number int) (*Table, error)
	SetReservation(ctx context.Context, a actor.Actor, number int, reserved bool) (*Table, error)

	// Seat locks the table row inside tx and marks it occupied. With
	// blockReserved a reserved table yields ErrTableReserved.
	Seat(ctx context.Context, tx *gorm.DB, number int, blockReserved bool) (SeatResult, error)
	// Sync locks the table row inside tx, then recounts its open orders.
	Sync(ctx context.Context, tx *gorm.DB, tableID snowflake.ID, count ActiveOrderCounter) (*Table, error)
	// Reconcile runs Sync over every table, each in its own transaction, and
	// returns how many tables changed state.
	Reconcile(ctx context.Context, count ActiveOrderCounter) (int, error)
}

type Repository interface {
	FindByNumber(ctx context.Context, db *gorm.DB, number int, forUpdate bool) (*Table, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Table, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]Table, error)
	ListIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, state State, at time.Time) error
	InsertIfMissing(ctx context.Context, db *gorm.DB, table *Table) error
}
