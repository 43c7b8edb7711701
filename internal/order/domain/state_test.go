package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kitchen = actor.Actor{ID: "k-1", Role: actor.RoleKitchen, Name: "Kitchen"}

func TestTransitionGraphIsClosed(t *testing.T) {
	edges := map[[2]State]bool{
		{StatePending, StatePreparing}:   true,
		{StatePending, StateCancelled}:   true,
		{StatePreparing, StateReady}:     true,
		{StatePreparing, StateCancelled}: true,
		{StateReady, StateDelivered}:     true,
		{StateReady, StateCancelled}:     true,
		{StateDelivered, StatePaid}:      true,
		{StateDelivered, StateCancelled}: true,
	}

	count := 0
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	for _, from := range States {
		for _, to := range States {
			count++
			want := edges[[2]State{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			o := &Order{State: from}
			entry, err := Transition(o, to, kitchen, "", at)
			if want {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, o.State)
				assert.Equal(t, to, entry.State)
				assert.Len(t, o.History, 1)
				continue
			}

			require.Error(t, err, "%s -> %s", from, to)
			assert.ErrorIs(t, err, domainerr.ErrIllegalTransition)
			var ite domainerr.IllegalTransitionError
			require.True(t, errors.As(err, &ite))
			assert.Equal(t, string(from), ite.Current)
			assert.Equal(t, string(to), ite.Requested)
			assert.Equal(t, from, o.State, "rejected transition must not mutate")
			assert.Empty(t, o.History)
		}
	}
	assert.Equal(t, 36, count)
}

func TestTerminalStatesAreFrozen(t *testing.T) {
	for _, terminal := range TerminalStates {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.AllowsLineEdits())
		assert.Empty(t, terminal.Next())
		for _, to := range States {
			o := &Order{State: terminal}
			_, err := Transition(o, to, kitchen, "late", time.Now())
			assert.ErrorIs(t, err, domainerr.ErrIllegalTransition)
		}
	}
}

func TestHappyPathHistory(t *testing.T) {
	o := &Order{State: StatePending, History: []HistoryEntry{{Seq: 1, State: StatePending}}}
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	for i, to := range []State{StatePreparing, StateReady, StateDelivered, StatePaid} {
		entry, err := Transition(o, to, kitchen, " step ", at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, i+2, entry.Seq)
		assert.Equal(t, "step", entry.Note)
	}
	require.Len(t, o.History, 5)
	assert.Equal(t, StatePaid, o.State)
	assert.Equal(t, at.Add(3*time.Minute), o.UpdatedAt)
}

func TestParseState(t *testing.T) {
	s, ok := ParseState(" ready ")
	assert.True(t, ok)
	assert.Equal(t, StateReady, s)

	_, ok = ParseState("served")
	assert.False(t, ok)
}

func TestLineEditWindow(t *testing.T) {
	assert.True(t, StatePending.AllowsLineEdits())
	assert.True(t, StatePreparing.AllowsLineEdits())
	assert.False(t, StateReady.AllowsLineEdits())
	assert.False(t, StateDelivered.AllowsLineEdits())
}

func TestRepriceAndSettle(t *testing.T) {
	o := &Order{Lines: []Line{
		{Quantity: 1, UnitPrice: decimal.RequireFromString("1200")},
		{Quantity: 2, UnitPrice: decimal.RequireFromString("150")},
	}}
	o.Reprice()
	assert.True(t, o.Lines[1].Subtotal.Equal(decimal.RequireFromString("300")))
	assert.True(t, o.Subtotal.Equal(decimal.RequireFromString("1500")))
	assert.True(t, o.Total.Equal(o.Subtotal))
	assert.True(t, o.Discount.Amount.IsZero())

	b, err := settlement.Compute(o.SettlementLines(), settlement.MethodCash, decimal.RequireFromString("1400"))
	require.NoError(t, err)

	cashier := actor.Actor{ID: "c-1", Role: actor.RoleCashier, Name: "Caro"}
	paidAt := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	o.ApplySettlement(b, cashier, paidAt)

	assert.True(t, o.Discount.Amount.Equal(decimal.RequireFromString("150")))
	require.NotNil(t, o.Discount.Method)
	assert.Equal(t, settlement.MethodCash, *o.Discount.Method)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("1350")))
	assert.True(t, o.Payment.Change.Decimal.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, "c-1", *o.Payment.CashierID)
	assert.Equal(t, paidAt, *o.Payment.PaidAt)
	assert.True(t, o.Total.Equal(o.Subtotal.Sub(o.Discount.Amount)))
}
