package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/comanda/internal/actor"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	ObjectOrder   = "order"
	ObjectTable   = "table"
	ObjectClosing = "closing"
	ObjectEvents  = "events"
	ObjectAudit   = "audit_log"
)

const (
	ActionOrderCreate     = "create"
	ActionOrderEditLines  = "edit_lines"
	ActionOrderTransition = "transition"
	ActionOrderSettle     = "settle"
	ActionOrderCancel     = "cancel"
	ActionView            = "view"

	ActionTableReserve = "reserve"

	ActionClosingCreate = "create"
	ActionClosingReview = "review"

	ActionEventsSubscribe = "subscribe"
)

type Service interface {
	Authorize(ctx context.Context, a actor.Actor, object string, action string) error
}
