package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

// ListFilter narrows a listing. Scope is always applied; the zero scope
// matches nothing.
type ListFilter struct {
	Scope    access.Scope
	Statuses []Status
	From     time.Time // start_time >= From when set
	To       time.Time // start_time < To when set
	Limit    int
	Offset   int
}

// Repository is the appointment store. Create and Update are conditional
// writes: a staff member can hold at most one non-cancelled appointment
// over any instant.
type Repository interface {
	slots.Bookings

	// Create stores appt or fails with ErrSlotUnavailable when it overlaps
	// another non-cancelled appointment of the same staff member.
	Create(ctx context.Context, appt Appointment) (*Appointment, error)
	// Update replaces appt if the stored version still equals
	// expectedVersion, appending entry to the history when non-nil.
	Update(ctx context.Context, appt Appointment, expectedVersion int64, entry *RescheduleEntry) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// List returns matching appointments, most recently booked first.
	List(ctx context.Context, filter ListFilter) ([]Appointment, error)
	// Clients returns each distinct client with an appointment in scope,
	// ordered by name then id.
	Clients(ctx context.Context, scope access.Scope) ([]ClientRef, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
