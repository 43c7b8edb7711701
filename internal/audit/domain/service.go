package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionOrderCancelled   = "order.cancelled"
	ActionOrderSettled     = "order.settled"
	ActionTableReservation = "table.reservation_changed"
	ActionClosingCreated   = "closing.created"
	ActionClosingReviewed  = "closing.reviewed"
)

const (
	TargetOrder   = "order"
	TargetTable   = "table"
	TargetClosing = "closing"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorID    string            `json:"actor_id" gorm:"size:64;index"`
	ActorRole  string            `json:"actor_role" gorm:"size:32"`
	ActorName  string            `json:"actor_name,omitempty" gorm:"size:120"`
	Action     string            `json:"action" gorm:"size:64;index"`
	TargetType string            `json:"target_type" gorm:"size:32;index:idx_audit_logs_target"`
	TargetID   string            `json:"target_id" gorm:"size:64;index:idx_audit_logs_target"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what callers hand to Record.
type Entry struct {
	Actor      actor.Actor
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type Service interface {
	// Record writes through db when it is a transaction, so the entry commits
	// or rolls back with the change it describes. A nil db uses the pool.
	Record(ctx context.Context, db *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]AuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
