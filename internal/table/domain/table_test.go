package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextState(t *testing.T) {
	cases := []struct {
		current State
		active  int64
		want    State
	}{
		{StateFree, 0, StateFree},
		{StateFree, 1, StateOccupied},
		{StateOccupied, 3, StateOccupied},
		{StateOccupied, 0, StateFree},
		{StateReserved, 0, StateReserved},
		{StateReserved, 2, StateOccupied},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NextState(tc.current, tc.active), "%s with %d open orders", tc.current, tc.active)
	}
}
