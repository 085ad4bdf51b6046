// Package viewcache holds what callers were last shown: slot listings and
// each client's appointment list. Entries expire after a TTL and can be
// changed tentatively while a booking commits.
package viewcache

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/appointment"
	"github.com/hackgods/wellness-scheduling/internal/optimistic"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

type slotKey struct {
	centreID  uuid.UUID
	staffID   uuid.UUID
	serviceID uuid.UUID
	date      string
}

func keyFor(req slots.Request) slotKey {
	return slotKey{
		centreID:  req.CentreID,
		staffID:   req.StaffID,
		serviceID: req.ServiceID,
		date:      req.Date.Format(time.DateOnly),
	}
}

type slotEntry struct {
	slots   []slots.TimeSlot
	expires time.Time
}

type listEntry struct {
	appointments []appointment.Appointment
	expires      time.Time
}

type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	slots map[slotKey]slotEntry
	lists map[uuid.UUID]listEntry
	holds map[*hold]struct{}
}

var _ appointment.View = (*Cache)(nil)

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:   ttl,
		now:   time.Now,
		slots: make(map[slotKey]slotEntry),
		lists: make(map[uuid.UUID]listEntry),
		holds: make(map[*hold]struct{}),
	}
}

// WithClock swaps the time source used for expiry.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) Slots(req slots.Request) ([]slots.TimeSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyFor(req)
	e, ok := c.slots[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.slots, key)
		return nil, false
	}
	return slices.Clone(e.slots), true
}

func (c *Cache) StoreSlots(req slots.Request, list []slots.TimeSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[keyFor(req)] = slotEntry{slots: slices.Clone(list), expires: c.now().Add(c.ttl)}
}

func (c *Cache) Appointments(clientID uuid.UUID) ([]appointment.Appointment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lists[clientID]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.lists, clientID)
		return nil, false
	}
	return cloneAppointments(e.appointments), true
}

func (c *Cache) StoreAppointments(clientID uuid.UUID, list []appointment.Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[clientID] = listEntry{appointments: cloneAppointments(list), expires: c.now().Add(c.ttl)}
}

// hold is a live optimistic occupancy. Rollbacks consult the remaining holds
// so they never free a slot another booking still covers.
type hold struct {
	staffID uuid.UUID
	start   time.Time
	end     time.Time
	expires time.Time
}

func (h *hold) overlaps(staffID uuid.UUID, start, end time.Time) bool {
	return h.staffID == staffID && h.start.Before(end) && start.Before(h.end)
}

// OccupyInterval marks every cached slot of staffID overlapping [start, end)
// unavailable. Rollback frees only the slots this update flipped, and only
// while no other hold overlaps them.
func (c *Cache) OccupyInterval(staffID uuid.UUID, start, end time.Time) optimistic.Update {
	h := &hold{staffID: staffID, start: start, end: end}
	flipped := make(map[slotKey][]time.Time)

	return optimistic.Update{
		Apply: func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			now := c.now()
			for other := range c.holds {
				if now.After(other.expires) {
					delete(c.holds, other)
				}
			}
			h.expires = now.Add(c.ttl)
			c.holds[h] = struct{}{}

			for key, e := range c.slots {
				if key.staffID != staffID {
					continue
				}
				var next []slots.TimeSlot
				for i, s := range e.slots {
					if s.Available && s.Start.Before(end) && start.Before(s.End) {
						if next == nil {
							next = slices.Clone(e.slots)
						}
						next[i].Available = false
						flipped[key] = append(flipped[key], s.Start)
					}
				}
				if next != nil {
					c.slots[key] = slotEntry{slots: next, expires: e.expires}
				}
			}
		},
		Rollback: func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			delete(c.holds, h)
			for key, starts := range flipped {
				e, ok := c.slots[key]
				if !ok {
					continue
				}
				var next []slots.TimeSlot
				for i, s := range e.slots {
					if s.Available || !slices.ContainsFunc(starts, s.Start.Equal) || c.heldLocked(staffID, s.Start, s.End) {
						continue
					}
					if next == nil {
						next = slices.Clone(e.slots)
					}
					next[i].Available = true
				}
				if next != nil {
					c.slots[key] = slotEntry{slots: next, expires: e.expires}
				}
			}
		},
	}
}

func (c *Cache) heldLocked(staffID uuid.UUID, start, end time.Time) bool {
	for h := range c.holds {
		if h.overlaps(staffID, start, end) {
			return true
		}
	}
	return false
}

// PrependAppointment puts appt first in its client's cached list. Nothing
// happens when the list is not cached; the next read loads it fresh.
// Rollback removes appt again and leaves the rest of the list alone.
func (c *Cache) PrependAppointment(appt appointment.Appointment) optimistic.Update {
	return optimistic.Update{
		Apply: func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			prior, ok := c.lists[appt.ClientID]
			if !ok {
				return
			}
			next := make([]appointment.Appointment, 0, len(prior.appointments)+1)
			next = append(next, appt.Clone())
			next = append(next, prior.appointments...)
			c.lists[appt.ClientID] = listEntry{appointments: next, expires: prior.expires}
		},
		Rollback: func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			e, ok := c.lists[appt.ClientID]
			if !ok {
				return
			}
			i := slices.IndexFunc(e.appointments, func(a appointment.Appointment) bool { return a.ID == appt.ID })
			if i < 0 {
				return
			}
			c.lists[appt.ClientID] = listEntry{appointments: slices.Delete(slices.Clone(e.appointments), i, i+1), expires: e.expires}
		},
	}
}

// Invalidate drops the client's list, every slot listing of the staff
// member and any hold on the appointment's interval.
func (c *Cache) Invalidate(appt appointment.Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for h := range c.holds {
		if h.overlaps(appt.StaffID, appt.StartTime, appt.EndTime) {
			delete(c.holds, h)
		}
	}
	delete(c.lists, appt.ClientID)
	for key := range c.slots {
		if key.staffID == appt.StaffID {
			delete(c.slots, key)
		}
	}
}

// Len reports the number of cached slot listings and client lists.
func (c *Cache) Len() (slotListings, clientLists int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots), len(c.lists)
}

func cloneAppointments(list []appointment.Appointment) []appointment.Appointment {
	out := make([]appointment.Appointment, len(list))
	for i, a := range list {
		out[i] = a.Clone()
	}
	return out
}
