package appointment

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/access"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
	// StatusRescheduled is never stored. Records carrying it from older
	// writers read back as scheduled.
	StatusRescheduled Status = "rescheduled"
)

// Normalize folds the transient rescheduled marker into scheduled.
func (s Status) Normalize() Status {
	if s == StatusRescheduled {
		return StatusScheduled
	}
	return s
}

// Terminal statuses accept no further mutation.
func (s Status) Terminal() bool {
	switch s.Normalize() {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// RescheduleEntry is one immutable move of an appointment.
type RescheduleEntry struct {
	PreviousStart   time.Time `json:"previous_start"`
	PreviousEnd     time.Time `json:"previous_end"`
	PreviousStaffID uuid.UUID `json:"previous_staff_id"`
	NewStart        time.Time `json:"new_start"`
	NewEnd          time.Time `json:"new_end"`
	NewStaffID      uuid.UUID `json:"new_staff_id"`
	Reason          string    `json:"reason"`
	Actor           uuid.UUID `json:"actor"`
	Timestamp       time.Time `json:"timestamp"`
}

type Appointment struct {
	ID         uuid.UUID `json:"id"`
	ClientID   uuid.UUID `json:"client_id"`
	CentreID   uuid.UUID `json:"centre_id"`
	ServiceID  uuid.UUID `json:"service_id"`
	StaffID    uuid.UUID `json:"staff_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     Status    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	PriceCents int64     `json:"price_cents"`

	// Display names captured when the appointment was booked.
	ClientName  string `json:"client_name"`
	ServiceName string `json:"service_name"`
	StaffName   string `json:"staff_name"`
	CentreName  string `json:"centre_name"`

	CreatedBy      uuid.UUID `json:"created_by"`
	LastModifiedBy uuid.UUID `json:"last_modified_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	CancellationReason string            `json:"cancellation_reason,omitempty"`
	RescheduleHistory  []RescheduleEntry `json:"reschedule_history,omitempty"`

	// Version increases on every stored change; updates are conditional on it.
	Version int64 `json:"version"`
}

// Target is the view of the appointment scope rules work on.
func (a Appointment) Target() access.Target {
	return access.Target{CentreID: a.CentreID, ClientID: a.ClientID, StaffID: a.StaffID}
}

// Clone copies the appointment including its history slice.
func (a Appointment) Clone() Appointment {
	a.RescheduleHistory = slices.Clone(a.RescheduleHistory)
	return a
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	ActorID       *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ClientRef is a bookable client as listed to admins.
type ClientRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
