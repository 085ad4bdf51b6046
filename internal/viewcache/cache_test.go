package viewcache

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/wellness-scheduling/internal/appointment"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

var day = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func grid(staffID uuid.UUID) []slots.TimeSlot {
	var out []slots.TimeSlot
	for h := 9; h < 12; h++ {
		start := day.Add(time.Duration(h) * time.Hour)
		out = append(out, slots.TimeSlot{StaffID: staffID, Start: start, End: start.Add(time.Hour), Available: true})
	}
	return out
}

func TestSlotsExpireAfterTTL(t *testing.T) {
	now := day
	c := New(30 * time.Second).WithClock(func() time.Time { return now })
	req := slots.Request{StaffID: uuid.New(), ServiceID: uuid.New(), Date: day}

	c.StoreSlots(req, grid(req.StaffID))
	got, ok := c.Slots(req)
	require.True(t, ok)
	assert.Len(t, got, 3)

	now = now.Add(31 * time.Second)
	_, ok = c.Slots(req)
	assert.False(t, ok)
}

func TestOccupyIntervalAppliesAndRollsBack(t *testing.T) {
	c := New(time.Minute)
	staffID := uuid.New()
	req := slots.Request{StaffID: staffID, ServiceID: uuid.New(), Date: day}
	c.StoreSlots(req, grid(staffID))

	u := c.OccupyInterval(staffID, day.Add(9*time.Hour+30*time.Minute), day.Add(10*time.Hour+30*time.Minute))
	u.Apply()

	got, _ := c.Slots(req)
	assert.False(t, got[0].Available, "09:00 overlaps 09:30")
	assert.False(t, got[1].Available, "10:00 overlaps up to 10:30")
	assert.True(t, got[2].Available)

	u.Rollback()
	got, _ = c.Slots(req)
	for _, s := range got {
		assert.True(t, s.Available)
	}
}

func TestOccupyIntervalLeavesOtherStaffAlone(t *testing.T) {
	c := New(time.Minute)
	other := uuid.New()
	req := slots.Request{StaffID: other, ServiceID: uuid.New(), Date: day}
	c.StoreSlots(req, grid(other))

	c.OccupyInterval(uuid.New(), day.Add(9*time.Hour), day.Add(10*time.Hour)).Apply()

	got, _ := c.Slots(req)
	assert.True(t, got[0].Available)
}

func TestRollbackKeepsOverlappingBookingOccupied(t *testing.T) {
	c := New(time.Minute)
	staffID := uuid.New()
	req := slots.Request{StaffID: staffID, ServiceID: uuid.New(), Date: day}
	c.StoreSlots(req, grid(staffID))

	// a covers 09:00-10:30, b covers 10:00-11:00; both touch the 10:00 slot
	a := c.OccupyInterval(staffID, day.Add(9*time.Hour), day.Add(10*time.Hour+30*time.Minute))
	b := c.OccupyInterval(staffID, day.Add(10*time.Hour), day.Add(11*time.Hour))
	a.Apply()
	b.Apply()
	a.Rollback()

	got, _ := c.Slots(req)
	assert.True(t, got[0].Available, "09:00 was only held by the failed booking")
	assert.False(t, got[1].Available, "10:00 is still covered by the committed booking")
	assert.True(t, got[2].Available)
}

func TestRollbackLeavesOtherFlippedSlotsAlone(t *testing.T) {
	c := New(time.Minute)
	staffID := uuid.New()
	req := slots.Request{StaffID: staffID, ServiceID: uuid.New(), Date: day}
	c.StoreSlots(req, grid(staffID))

	a := c.OccupyInterval(staffID, day.Add(9*time.Hour), day.Add(10*time.Hour))
	b := c.OccupyInterval(staffID, day.Add(11*time.Hour), day.Add(12*time.Hour))
	a.Apply()
	b.Apply()
	a.Rollback()

	got, _ := c.Slots(req)
	assert.True(t, got[0].Available)
	assert.False(t, got[2].Available, "11:00 belongs to the committed booking")
}

func TestInvalidateReleasesHold(t *testing.T) {
	c := New(time.Minute)
	staffID := uuid.New()
	req := slots.Request{StaffID: staffID, ServiceID: uuid.New(), Date: day}
	c.StoreSlots(req, grid(staffID))

	committed := appointment.Appointment{ID: uuid.New(), StaffID: staffID, StartTime: day.Add(10 * time.Hour), EndTime: day.Add(11 * time.Hour)}
	c.OccupyInterval(staffID, committed.StartTime, committed.EndTime).Apply()
	c.Invalidate(committed)

	// the committed booking was cancelled; a later failed attempt on the
	// same slot must free it again
	c.StoreSlots(req, grid(staffID))
	u := c.OccupyInterval(staffID, committed.StartTime, committed.EndTime)
	u.Apply()
	u.Rollback()

	got, _ := c.Slots(req)
	assert.True(t, got[1].Available)
}

func TestPrependRollbackKeepsConcurrentPrepend(t *testing.T) {
	c := New(time.Minute)
	clientID := uuid.New()
	c.StoreAppointments(clientID, nil)

	a := appointment.Appointment{ID: uuid.New(), ClientID: clientID}
	b := appointment.Appointment{ID: uuid.New(), ClientID: clientID}
	ua, ub := c.PrependAppointment(a), c.PrependAppointment(b)
	ua.Apply()
	ub.Apply()
	ua.Rollback()

	list, ok := c.Appointments(clientID)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestPrependAppointment(t *testing.T) {
	c := New(time.Minute)
	clientID := uuid.New()
	existing := appointment.Appointment{ID: uuid.New(), ClientID: clientID}
	c.StoreAppointments(clientID, []appointment.Appointment{existing})

	booked := appointment.Appointment{ID: uuid.New(), ClientID: clientID}
	u := c.PrependAppointment(booked)
	u.Apply()

	list, ok := c.Appointments(clientID)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, booked.ID, list[0].ID)

	u.Rollback()
	list, _ = c.Appointments(clientID)
	require.Len(t, list, 1)
	assert.Equal(t, existing.ID, list[0].ID)
}

func TestPrependWithoutCachedListIsNoop(t *testing.T) {
	c := New(time.Minute)
	appt := appointment.Appointment{ID: uuid.New(), ClientID: uuid.New()}

	u := c.PrependAppointment(appt)
	u.Apply()
	_, ok := c.Appointments(appt.ClientID)
	assert.False(t, ok)

	u.Rollback()
	_, ok = c.Appointments(appt.ClientID)
	assert.False(t, ok)
}

func TestInvalidateDropsClientAndStaffEntries(t *testing.T) {
	c := New(time.Minute)
	staffID, clientID := uuid.New(), uuid.New()
	c.StoreSlots(slots.Request{StaffID: staffID, Date: day}, grid(staffID))
	c.StoreSlots(slots.Request{StaffID: uuid.New(), Date: day}, nil)
	c.StoreAppointments(clientID, nil)

	c.Invalidate(appointment.Appointment{ClientID: clientID, StaffID: staffID})

	listings, lists := c.Len()
	assert.Equal(t, 1, listings)
	assert.Equal(t, 0, lists)
}
