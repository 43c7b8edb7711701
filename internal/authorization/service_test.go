package authorization

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoleGrants(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	waiter := actor.Actor{ID: "w1", Role: actor.RoleWaitstaff}
	kitchen := actor.Actor{ID: "k1", Role: actor.RoleKitchen}
	cashier := actor.Actor{ID: "c1", Role: actor.RoleCashier}
	supervisor := actor.Actor{ID: "s1", Role: actor.RoleSupervisor}

	cases := []struct {
		name    string
		actor   actor.Actor
		object  string
		action  string
		allowed bool
	}{
		{"waiter creates order", waiter, ObjectOrder, ActionOrderCreate, true},
		{"waiter cannot settle", waiter, ObjectOrder, ActionOrderSettle, false},
		{"kitchen advances", kitchen, ObjectOrder, ActionOrderTransition, true},
		{"kitchen cannot create", kitchen, ObjectOrder, ActionOrderCreate, false},
		{"cashier settles", cashier, ObjectOrder, ActionOrderSettle, true},
		{"cashier closes shift", cashier, ObjectClosing, ActionClosingCreate, true},
		{"cashier cannot review", cashier, ObjectClosing, ActionClosingReview, false},
		{"supervisor reviews", supervisor, ObjectClosing, ActionClosingReview, true},
		{"supervisor inherits cashier", supervisor, ObjectOrder, ActionOrderSettle, true},
		{"supervisor inherits waitstaff", supervisor, ObjectOrder, ActionOrderCreate, true},
		{"supervisor reads audit trail", supervisor, ObjectAudit, ActionView, true},
		{"cashier cannot read audit trail", cashier, ObjectAudit, ActionView, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, actor.Actor{Role: actor.RoleCashier}, ObjectOrder, ActionView), actor.ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, actor.Actor{ID: "c1", Role: actor.RoleCashier}, "", ActionView), ErrInvalidObject)
}
