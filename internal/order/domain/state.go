package domain

import (
	"strings"
	"time"

	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/domainerr"
)

type State string

const (
	StatePending   State = "PENDING"
	StatePreparing State = "PREPARING"
	StateReady     State = "READY"
	StateDelivered State = "DELIVERED"
	StatePaid      State = "PAID"
	StateCancelled State = "CANCELLED"
)

// States lists every state in lifecycle order.
var States = []State{StatePending, StatePreparing, StateReady, StateDelivered, StatePaid, StateCancelled}

// TerminalStates are frozen: no transition, line edit or monetary change.
var TerminalStates = []State{StatePaid, StateCancelled}

var successors = map[State][]State{
	StatePending:   {StatePreparing, StateCancelled},
	StatePreparing: {StateReady, StateCancelled},
	StateReady:     {StateDelivered, StateCancelled},
	StateDelivered: {StatePaid, StateCancelled},
}

func ParseState(raw string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

func (s State) Valid() bool {
	switch s {
	case StatePending, StatePreparing, StateReady, StateDelivered, StatePaid, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) Terminal() bool {
	return s == StatePaid || s == StateCancelled
}

// AllowsLineEdits reports whether lines may still change; the kitchen has not
// finished the order yet.
func (s State) AllowsLineEdits() bool {
	return s == StatePending || s == StatePreparing
}

// Next returns the states reachable from s in one step.
func (s State) Next() []State {
	next := successors[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to State) bool {
	for _, candidate := range successors[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition moves o to the requested state and appends the history entry.
// It does not persist anything.
func Transition(o *Order, to State, by actor.Actor, note string, at time.Time) (HistoryEntry, error) {
	if o.State.Terminal() || !CanTransition(o.State, to) {
		return HistoryEntry{}, domainerr.IllegalTransitionError{
			Resource:  "order",
			Current:   string(o.State),
			Requested: string(to),
		}
	}

	entry := HistoryEntry{
		OrderID:    o.ID,
		Seq:        len(o.History) + 1,
		State:      to,
		Actor:      by,
		Note:       strings.TrimSpace(note),
		OccurredAt: at,
	}
	o.State = to
	o.UpdatedAt = at
	o.History = append(o.History, entry)
	return entry, nil
}
