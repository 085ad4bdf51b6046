package access

import (
	"fmt"
	"slices"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
)

type Role string

const (
	RoleClient      Role = "client"
	RoleStaff       Role = "staff"
	RoleCentreAdmin Role = "centre_admin"
	RoleSuperAdmin  Role = "super_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleStaff, RoleCentreAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin is true for both admin roles.
func (r Role) IsAdmin() bool {
	return r == RoleCentreAdmin || r == RoleSuperAdmin
}

type Action string

const (
	ActionRead       Action = "read"
	ActionBook       Action = "book"
	ActionConfirm    Action = "confirm"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionNoShow     Action = "no_show"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	ActionEditNotes  Action = "edit_notes"
)

// Actor is an already authenticated identity. CentreIDs is the assigned set
// for centre admins and the centre memberships for staff.
type Actor struct {
	ID        uuid.UUID
	Role      Role
	CentreIDs []uuid.UUID
}

// Target carries the appointment fields scope rules look at.
type Target struct {
	CentreID uuid.UUID
	ClientID uuid.UUID
	StaffID  uuid.UUID
}

const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.act == "*" || r.act == p.act)
`

// defaultPolicy is the role to action matrix. Staff may only touch
// operational fields; clients book for themselves and cancel.
var defaultPolicy = [][]string{
	{string(RoleSuperAdmin), "*"},
	{string(RoleCentreAdmin), "*"},
	{string(RoleStaff), string(ActionRead)},
	{string(RoleStaff), string(ActionConfirm)},
	{string(RoleStaff), string(ActionStart)},
	{string(RoleStaff), string(ActionComplete)},
	{string(RoleStaff), string(ActionNoShow)},
	{string(RoleStaff), string(ActionCancel)},
	{string(RoleStaff), string(ActionEditNotes)},
	{string(RoleClient), string(ActionRead)},
	{string(RoleClient), string(ActionBook)},
	{string(RoleClient), string(ActionCancel)},
}

type Option func(*Resolver)

// WithStaffCentreWideRead lets staff read every appointment at the centres
// they belong to. Mutations stay limited to their own appointments.
func WithStaffCentreWideRead(enabled bool) Option {
	return func(r *Resolver) { r.staffCentreWide = enabled }
}

// Resolver is the single place role and scope checks are made.
type Resolver struct {
	enforcer        *casbin.Enforcer
	staffCentreWide bool
}

func NewResolver(opts ...Option) (*Resolver, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	for _, rule := range defaultPolicy {
		if _, err := e.AddPolicy(rule[0], rule[1]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", rule, err)
		}
	}

	r := &Resolver{enforcer: e}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Allowed reports whether the role may perform the action at all, before
// any record scope is considered.
func (r *Resolver) Allowed(role Role, action Action) bool {
	if !role.Valid() {
		return false
	}
	ok, err := r.enforcer.Enforce(string(role), string(action))
	return err == nil && ok
}

// Visible returns the read scope of the actor.
func (r *Resolver) Visible(actor Actor) Scope {
	if actor.ID == uuid.Nil || !r.Allowed(actor.Role, ActionRead) {
		return Scope{}
	}
	switch actor.Role {
	case RoleSuperAdmin:
		return Scope{All: true}
	case RoleCentreAdmin:
		return Scope{CentreIDs: slices.Clone(actor.CentreIDs)}
	case RoleStaff:
		s := Scope{StaffID: actor.ID}
		if r.staffCentreWide {
			s.CentreIDs = slices.Clone(actor.CentreIDs)
		}
		return s
	case RoleClient:
		return Scope{ClientID: actor.ID}
	}
	return Scope{}
}

// VisibleAppointments is Visible as a predicate.
func (r *Resolver) VisibleAppointments(actor Actor) func(Target) bool {
	return r.Visible(actor).Allows
}

// CanMutate reports whether actor may apply action to the target record.
func (r *Resolver) CanMutate(actor Actor, target Target, action Action) bool {
	if actor.ID == uuid.Nil || action == ActionRead || !r.Allowed(actor.Role, action) {
		return false
	}
	switch actor.Role {
	case RoleSuperAdmin:
		return true
	case RoleCentreAdmin:
		return slices.Contains(actor.CentreIDs, target.CentreID)
	case RoleStaff:
		return target.StaffID == actor.ID
	case RoleClient:
		return target.ClientID == actor.ID
	}
	return false
}

// CanBook reports whether actor may create an appointment for clientID at
// centreID.
func (r *Resolver) CanBook(actor Actor, centreID, clientID uuid.UUID) bool {
	if actor.ID == uuid.Nil || !r.Allowed(actor.Role, ActionBook) {
		return false
	}
	switch actor.Role {
	case RoleSuperAdmin:
		return true
	case RoleCentreAdmin:
		return slices.Contains(actor.CentreIDs, centreID)
	case RoleClient:
		return clientID == actor.ID
	}
	return false
}

// CanViewCentre gates centre-level listings such as eligible staff.
// Clients browse every centre; staff and centre admins see their own.
func (r *Resolver) CanViewCentre(actor Actor, centreID uuid.UUID) bool {
	switch actor.Role {
	case RoleSuperAdmin, RoleClient:
		return actor.ID != uuid.Nil
	case RoleCentreAdmin, RoleStaff:
		return actor.ID != uuid.Nil && slices.Contains(actor.CentreIDs, centreID)
	}
	return false
}
