package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/comanda/internal/actor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies from casbin_rule and seeds the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, a actor.Actor, object string, action string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(a.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor_id", a.ID),
			zap.String("role", string(a.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func subject(role actor.Role) string {
	return "role:" + string(role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	waitstaff := subject(actor.RoleWaitstaff)
	kitchen := subject(actor.RoleKitchen)
	cashier := subject(actor.RoleCashier)
	supervisor := subject(actor.RoleSupervisor)
	reservations := subject(actor.RoleReservations)

	policies := [][]string{
		{waitstaff, ObjectOrder, ActionOrderCreate},
		{waitstaff, ObjectOrder, ActionOrderEditLines},
		{waitstaff, ObjectOrder, ActionOrderTransition},
		{waitstaff, ObjectOrder, ActionOrderCancel},
		{waitstaff, ObjectOrder, ActionView},
		{waitstaff, ObjectTable, ActionView},
		{waitstaff, ObjectEvents, ActionEventsSubscribe},

		{kitchen, ObjectOrder, ActionOrderTransition},
		{kitchen, ObjectOrder, ActionView},
		{kitchen, ObjectEvents, ActionEventsSubscribe},

		{cashier, ObjectOrder, ActionOrderSettle},
		{cashier, ObjectOrder, ActionOrderCancel},
		{cashier, ObjectOrder, ActionOrderTransition},
		{cashier, ObjectOrder, ActionView},
		{cashier, ObjectTable, ActionView},
		{cashier, ObjectClosing, ActionClosingCreate},
		{cashier, ObjectClosing, ActionView},
		{cashier, ObjectEvents, ActionEventsSubscribe},

		{supervisor, ObjectClosing, ActionClosingReview},
		{supervisor, ObjectTable, ActionTableReserve},
		{supervisor, ObjectAudit, ActionView},

		{reservations, ObjectTable, ActionTableReserve},
		{reservations, ObjectTable, ActionView},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}

	for _, inherited := range []string{waitstaff, kitchen, cashier} {
		has, err := enforcer.HasGroupingPolicy(supervisor, inherited)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(supervisor, inherited); err != nil {
			return err
		}
	}
	return nil
}
