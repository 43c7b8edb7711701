package orderevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	hub.subscriberBuffer = 1

	fast, err := hub.Subscribe("kitchen")
	require.NoError(t, err)
	defer fast.Close()
	slow, err := hub.Subscribe("kitchen")
	require.NoError(t, err)
	defer slow.Close()

	delivered, dropped := hub.Publish("kitchen", Event{ID: "1"})
	assert.Equal(t, 2, delivered)
	assert.Zero(t, dropped)
	assert.Equal(t, "1", (<-fast.Events()).ID)

	delivered, dropped = hub.Publish("kitchen", Event{ID: "2"})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "2", (<-fast.Events()).ID)
	assert.Equal(t, "1", (<-slow.Events()).ID)
}

func TestHubHasNoReplay(t *testing.T) {
	hub := NewHub()
	delivered, dropped := hub.Publish("cashier", Event{ID: "early"})
	assert.Zero(t, delivered)
	assert.Zero(t, dropped)

	sub, err := hub.Subscribe("cashier")
	require.NoError(t, err)
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected replay of %s", ev.ID)
	default:
	}

	sub.Close()
	sub.Close()
	assert.Zero(t, hub.Subscribers("cashier"))
}

func TestHubRejectsBadStreams(t *testing.T) {
	hub := NewHub()
	_, err := hub.Subscribe(" ")
	assert.ErrorIs(t, err, ErrInvalidStream)
	_, err = hub.Subscribe("waitstaff:")
	assert.ErrorIs(t, err, ErrInvalidStream)

	var nilHub *Hub
	_, err = nilHub.Subscribe("kitchen")
	assert.ErrorIs(t, err, ErrHubUnavailable)
}
