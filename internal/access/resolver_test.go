package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	r, err := NewResolver(opts...)
	require.NoError(t, err)
	return r
}

func TestCentreAdminScopedToAssignedCentres(t *testing.T) {
	r := newResolver(t)
	centreA, centreB := uuid.New(), uuid.New()
	admin := Actor{ID: uuid.New(), Role: RoleCentreAdmin, CentreIDs: []uuid.UUID{centreA}}
	super := Actor{ID: uuid.New(), Role: RoleSuperAdmin}

	inA := Target{CentreID: centreA, ClientID: uuid.New(), StaffID: uuid.New()}
	inB := Target{CentreID: centreB, ClientID: uuid.New(), StaffID: uuid.New()}

	visible := r.VisibleAppointments(admin)
	assert.True(t, visible(inA))
	assert.False(t, visible(inB))

	for _, action := range []Action{ActionCancel, ActionReschedule, ActionComplete, ActionNoShow, ActionEditNotes, ActionConfirm} {
		assert.True(t, r.CanMutate(admin, inA, action), action)
		assert.False(t, r.CanMutate(admin, inB, action), action)
		assert.True(t, r.CanMutate(super, inA, action), action)
		assert.True(t, r.CanMutate(super, inB, action), action)
	}

	assert.True(t, r.VisibleAppointments(super)(inB))
}

func TestClientLimitedToOwnAppointmentsAndCancel(t *testing.T) {
	r := newResolver(t)
	client := Actor{ID: uuid.New(), Role: RoleClient}
	own := Target{CentreID: uuid.New(), ClientID: client.ID, StaffID: uuid.New()}
	other := Target{CentreID: own.CentreID, ClientID: uuid.New(), StaffID: own.StaffID}

	assert.True(t, r.Visible(client).Allows(own))
	assert.False(t, r.Visible(client).Allows(other))

	assert.True(t, r.CanMutate(client, own, ActionCancel))
	assert.False(t, r.CanMutate(client, other, ActionCancel))
	for _, action := range []Action{ActionComplete, ActionNoShow, ActionConfirm, ActionStart, ActionReschedule, ActionEditNotes} {
		assert.False(t, r.CanMutate(client, own, action), action)
	}
}

func TestStaffOwnAppointmentsOperationalOnly(t *testing.T) {
	r := newResolver(t)
	centre := uuid.New()
	staff := Actor{ID: uuid.New(), Role: RoleStaff, CentreIDs: []uuid.UUID{centre}}
	mine := Target{CentreID: centre, ClientID: uuid.New(), StaffID: staff.ID}
	colleague := Target{CentreID: centre, ClientID: uuid.New(), StaffID: uuid.New()}

	assert.True(t, r.Visible(staff).Allows(mine))
	assert.False(t, r.Visible(staff).Allows(colleague))

	assert.True(t, r.CanMutate(staff, mine, ActionComplete))
	assert.True(t, r.CanMutate(staff, mine, ActionNoShow))
	assert.True(t, r.CanMutate(staff, mine, ActionEditNotes))
	assert.False(t, r.CanMutate(staff, mine, ActionReschedule))
	assert.False(t, r.CanMutate(staff, colleague, ActionComplete))
	assert.False(t, r.CanBook(staff, centre, uuid.New()))

	wide := newResolver(t, WithStaffCentreWideRead(true))
	assert.True(t, wide.Visible(staff).Allows(colleague))
	assert.False(t, wide.CanMutate(staff, colleague, ActionComplete))
}

func TestCanBook(t *testing.T) {
	r := newResolver(t)
	centreA, centreB := uuid.New(), uuid.New()
	client := Actor{ID: uuid.New(), Role: RoleClient}
	admin := Actor{ID: uuid.New(), Role: RoleCentreAdmin, CentreIDs: []uuid.UUID{centreA}}
	super := Actor{ID: uuid.New(), Role: RoleSuperAdmin}

	assert.True(t, r.CanBook(client, centreA, client.ID))
	assert.False(t, r.CanBook(client, centreA, uuid.New()))
	assert.True(t, r.CanBook(admin, centreA, uuid.New()))
	assert.False(t, r.CanBook(admin, centreB, uuid.New()))
	assert.True(t, r.CanBook(super, centreB, uuid.New()))
}

func TestUnknownOrAnonymousActorsSeeNothing(t *testing.T) {
	r := newResolver(t)
	target := Target{CentreID: uuid.New(), ClientID: uuid.New(), StaffID: uuid.New()}

	anon := Actor{Role: RoleSuperAdmin}
	assert.True(t, r.Visible(anon).Empty())
	assert.False(t, r.CanMutate(anon, target, ActionCancel))

	rogue := Actor{ID: uuid.New(), Role: Role("owner")}
	assert.True(t, r.Visible(rogue).Empty())
	assert.False(t, r.CanMutate(rogue, target, ActionCancel))
	assert.False(t, r.Allowed(rogue.Role, ActionRead))
}

func TestCanViewCentre(t *testing.T) {
	r := newResolver(t)
	centreA, centreB := uuid.New(), uuid.New()
	admin := Actor{ID: uuid.New(), Role: RoleCentreAdmin, CentreIDs: []uuid.UUID{centreA}}

	assert.True(t, r.CanViewCentre(admin, centreA))
	assert.False(t, r.CanViewCentre(admin, centreB))
	assert.True(t, r.CanViewCentre(Actor{ID: uuid.New(), Role: RoleClient}, centreB))
}
