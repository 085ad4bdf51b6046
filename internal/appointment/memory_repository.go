package appointment

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

// MemoryRepository keeps appointments in process. Every conditional write
// checks and commits under one lock.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Appointment
	order  []uuid.UUID // insertion order
	events []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]*Appointment)}
}

func (r *MemoryRepository) Create(_ context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[appt.ID]; exists {
		return nil, fmt.Errorf("appointment %s already exists", appt.ID)
	}
	if other := r.conflictLocked(appt.StaffID, appt.StartTime, appt.EndTime, uuid.Nil); other != nil {
		return nil, fmt.Errorf("%w: overlaps appointment %s", ErrSlotUnavailable, other.ID)
	}

	stored := appt.Clone()
	stored.Status = stored.Status.Normalize()
	stored.Version = 1
	r.byID[stored.ID] = &stored
	r.order = append(r.order, stored.ID)

	out := stored.Clone()
	return &out, nil
}

func (r *MemoryRepository) Update(_ context.Context, appt Appointment, expectedVersion int64, entry *RescheduleEntry) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[appt.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrStaleAppointment, current.Version, expectedVersion)
	}

	status := appt.Status.Normalize()
	if status != StatusCancelled {
		if other := r.conflictLocked(appt.StaffID, appt.StartTime, appt.EndTime, appt.ID); other != nil {
			return nil, fmt.Errorf("%w: overlaps appointment %s", ErrSlotUnavailable, other.ID)
		}
	}

	next := appt.Clone()
	next.Status = status
	// history is append-only and owned by the store
	next.RescheduleHistory = slices.Clone(current.RescheduleHistory)
	if entry != nil {
		next.RescheduleHistory = append(next.RescheduleHistory, *entry)
	}
	next.CreatedAt = current.CreatedAt
	next.CreatedBy = current.CreatedBy
	next.Version = current.Version + 1
	r.byID[next.ID] = &next

	out := next.Clone()
	return &out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := appt.Clone()
	return &out, nil
}

func (r *MemoryRepository) List(_ context.Context, filter ListFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Appointment{}
	if filter.Scope.Empty() {
		return out, nil
	}
	skipped := 0
	for i := len(r.order) - 1; i >= 0; i-- {
		appt := r.byID[r.order[i]]
		if !matches(*appt, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, appt.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) Clients(_ context.Context, scope access.Scope) ([]ClientRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []ClientRef{}
	if scope.Empty() {
		return out, nil
	}
	seen := make(map[uuid.UUID]bool)
	// newest first, so each client carries the name from their latest booking
	for i := len(r.order) - 1; i >= 0; i-- {
		appt := r.byID[r.order[i]]
		if seen[appt.ClientID] || !scope.Allows(appt.Target()) {
			continue
		}
		seen[appt.ClientID] = true
		out = append(out, ClientRef{ID: appt.ClientID, Name: appt.ClientName})
	}
	slices.SortFunc(out, func(a, b ClientRef) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func matches(a Appointment, f ListFilter) bool {
	if !f.Scope.Allows(a.Target()) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if !f.From.IsZero() && a.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !a.StartTime.Before(f.To) {
		return false
	}
	return true
}

func (r *MemoryRepository) BusyIntervals(_ context.Context, staffID uuid.UUID, from, to time.Time) ([]slots.Interval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []slots.Interval
	for _, id := range r.order {
		a := r.byID[id]
		if a.StaffID != staffID || a.Status == StatusCancelled {
			continue
		}
		if a.StartTime.Before(to) && from.Before(a.EndTime) {
			out = append(out, slots.Interval{AppointmentID: a.ID, Start: a.StartTime, End: a.EndTime})
		}
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns the audit log written so far.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

// conflictLocked finds a non-cancelled appointment of staffID overlapping
// [start, end), ignoring skip.
func (r *MemoryRepository) conflictLocked(staffID uuid.UUID, start, end time.Time, skip uuid.UUID) *Appointment {
	for _, a := range r.byID {
		if a.ID == skip || a.StaffID != staffID || a.Status == StatusCancelled {
			continue
		}
		if start.Before(a.EndTime) && a.StartTime.Before(end) {
			return a
		}
	}
	return nil
}
