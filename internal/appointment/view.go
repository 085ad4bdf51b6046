package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/optimistic"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

// View is the caller-facing cache of slot listings and client appointment
// lists. The service applies tentative changes to it while a booking commits.
type View interface {
	Slots(req slots.Request) ([]slots.TimeSlot, bool)
	StoreSlots(req slots.Request, list []slots.TimeSlot)
	Appointments(clientID uuid.UUID) ([]Appointment, bool)
	StoreAppointments(clientID uuid.UUID, list []Appointment)

	// OccupyInterval marks cached slots of staffID overlapping [start, end)
	// unavailable.
	OccupyInterval(staffID uuid.UUID, start, end time.Time) optimistic.Update
	// PrependAppointment puts appt at the head of its client's cached list.
	PrependAppointment(appt Appointment) optimistic.Update
	// Invalidate drops cached entries appt may have made stale.
	Invalidate(appt Appointment)
}

type noopView struct{}

func (noopView) Slots(slots.Request) ([]slots.TimeSlot, bool)     { return nil, false }
func (noopView) StoreSlots(slots.Request, []slots.TimeSlot)       {}
func (noopView) Appointments(uuid.UUID) ([]Appointment, bool)     { return nil, false }
func (noopView) StoreAppointments(uuid.UUID, []Appointment)       {}
func (noopView) Invalidate(Appointment)                           {}
func (noopView) PrependAppointment(Appointment) optimistic.Update { return optimistic.Update{} }
func (noopView) OccupyInterval(uuid.UUID, time.Time, time.Time) optimistic.Update {
	return optimistic.Update{}
}
