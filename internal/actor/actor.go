// Package actor describes who performs an operation. The identity
// collaborator supplies it; nothing here authenticates.
package actor

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleWaitstaff    Role = "waitstaff"
	RoleKitchen      Role = "kitchen"
	RoleCashier      Role = "cashier"
	RoleSupervisor   Role = "supervisor"
	RoleReservations Role = "reservations"
)

var ErrInvalidActor = errors.New("invalid_actor")

// Actor is an opaque reference recorded on every transition and closing.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name"`
}

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleWaitstaff, RoleKitchen, RoleCashier, RoleSupervisor, RoleReservations:
		return role, true
	default:
		return "", false
	}
}

// New builds an actor from raw identity values, falling back to the id as
// display name.
func New(id, role, name string) (Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Actor{}, ErrInvalidActor
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return Actor{}, ErrInvalidActor
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	return Actor{ID: id, Role: parsed, Name: name}, nil
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrInvalidActor
	}
	if _, ok := ParseRole(string(a.Role)); !ok {
		return ErrInvalidActor
	}
	return nil
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}
