// Package orderevents fans committed order changes out to the kitchen,
// cashier and waitstaff streams, and optionally across instances and to a
// message broker.
package orderevents

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/comanda/internal/actor"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
)

type Audience string

const (
	AudienceKitchen   Audience = "kitchen"
	AudienceCashier   Audience = "cashier"
	AudienceWaitstaff Audience = "waitstaff"
)

func ParseAudience(raw string) (Audience, bool) {
	switch a := Audience(strings.ToLower(strings.TrimSpace(raw))); a {
	case AudienceKitchen, AudienceCashier, AudienceWaitstaff:
		return a, true
	default:
		return "", false
	}
}

// Event is the envelope pushed to subscribers. Order is a full snapshot so a
// receiver can render without fetching.
type Event struct {
	ID            string                 `json:"id"`
	Kind          orderdomain.ChangeKind `json:"kind"`
	OccurredAt    time.Time              `json:"occurred_at"`
	OrderID       snowflake.ID           `json:"order_id"`
	PreviousState orderdomain.State      `json:"previous_state,omitempty"`
	State         orderdomain.State      `json:"state"`
	Actor         actor.Actor            `json:"actor"`
	Order         orderdomain.Order      `json:"order"`
}

func FromChange(change orderdomain.Change) Event {
	at := change.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ev := Event{
		ID:         ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		Kind:       change.Kind,
		OccurredAt: at,
		OrderID:    change.Order.ID,
		State:      change.Order.State,
		Actor:      change.Actor,
		Order:      change.Order,
	}
	if change.Kind != orderdomain.KindCreated {
		ev.PreviousState = change.PreviousState
	}
	return ev
}

func (e Event) transition() bool {
	return e.Kind == orderdomain.KindStateChanged || e.Kind == orderdomain.KindSettled
}

// Audiences decides who hears about an event.
func Audiences(e Event) []Audience {
	out := make([]Audience, 0, 3)

	switch {
	case e.Kind == orderdomain.KindCreated, e.Kind == orderdomain.KindLinesUpdated:
		out = append(out, AudienceKitchen)
	case e.transition():
		switch e.PreviousState {
		case orderdomain.StatePending, orderdomain.StatePreparing, orderdomain.StateReady:
			out = append(out, AudienceKitchen)
		}
	}

	if e.transition() && (e.State == orderdomain.StateReady || e.State == orderdomain.StateDelivered) {
		out = append(out, AudienceCashier)
	}

	if strings.TrimSpace(e.Order.Waiter.ID) != "" {
		out = append(out, AudienceWaitstaff)
	}
	return out
}

// StreamKey names the hub stream of an audience. Waitstaff streams are per
// waiter.
func StreamKey(a Audience, actorID string) string {
	if a == AudienceWaitstaff {
		return fmt.Sprintf("%s:%s", a, strings.TrimSpace(actorID))
	}
	return string(a)
}

type route struct {
	audience Audience
	key      string
}

func routes(e Event) []route {
	audiences := Audiences(e)
	out := make([]route, 0, len(audiences))
	for _, a := range audiences {
		out = append(out, route{audience: a, key: StreamKey(a, e.Order.Waiter.ID)})
	}
	return out
}
