package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	a, err := New(" w-7 ", "Waitstaff", "")
	assert.NoError(t, err)
	assert.Equal(t, Actor{ID: "w-7", Role: RoleWaitstaff, Name: "w-7"}, a)

	_, err = New("", "cashier", "Ana")
	assert.ErrorIs(t, err, ErrInvalidActor)

	_, err = New("x", "chef", "Ana")
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Actor{ID: "c1", Role: RoleCashier}.Validate())
	assert.ErrorIs(t, Actor{ID: "c1", Role: "owner"}.Validate(), ErrInvalidActor)
	assert.ErrorIs(t, Actor{Role: RoleCashier}.Validate(), ErrInvalidActor)
}
