package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

// mutation describes one lifecycle change.
type mutation struct {
	action access.Action
	event  string
	// apply edits next and may return a history entry to append.
	apply func(ctx context.Context, current Appointment, next *Appointment) (*RescheduleEntry, error)
	// recheck, when set, runs under the slot claim of next before the write.
	recheck func(ctx context.Context, next Appointment) error
	// reason is passed on to notifications.
	reason string
}

// Confirm accepts a booking. Services that require approval can only be
// confirmed by an admin.
func (s *Service) Confirm(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, mutation{
		action: access.ActionConfirm,
		event:  EventAppointmentConfirmed,
		apply: func(ctx context.Context, current Appointment, _ *Appointment) (*RescheduleEntry, error) {
			if actor.Role.IsAdmin() {
				return nil, nil
			}
			service, err := s.directory.Repository().GetService(ctx, current.ServiceID)
			if err != nil {
				return nil, lookupErr("service", err)
			}
			if service.Policy.ApprovalRequired {
				return nil, fmt.Errorf("%w: %s needs admin approval", ErrPermissionDenied, service.Name)
			}
			return nil, nil
		},
	})
}

func (s *Service) Start(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, mutation{action: access.ActionStart, event: EventAppointmentStarted})
}

func (s *Service) Complete(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, mutation{action: access.ActionComplete, event: EventAppointmentCompleted})
}

func (s *Service) MarkNoShow(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, mutation{action: access.ActionNoShow, event: EventAppointmentNoShow})
}

func (s *Service) UpdateNotes(ctx context.Context, actor access.Actor, id uuid.UUID, notes string) (*Appointment, error) {
	notes = strings.TrimSpace(notes)
	return s.transition(ctx, actor, id, mutation{
		action: access.ActionEditNotes,
		event:  EventAppointmentNotes,
		apply: func(_ context.Context, _ Appointment, next *Appointment) (*RescheduleEntry, error) {
			next.Notes = notes
			return nil, nil
		},
	})
}

// Cancel needs a reason and must happen before the notice window.
func (s *Service) Cancel(ctx context.Context, actor access.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, id, mutation{
		action: access.ActionCancel,
		event:  EventAppointmentCancelled,
		reason: reason,
		apply: func(_ context.Context, _ Appointment, next *Appointment) (*RescheduleEntry, error) {
			if reason == "" {
				return nil, fmt.Errorf("%w: cancellation needs a reason", ErrReasonRequired)
			}
			next.CancellationReason = reason
			return nil, nil
		},
	})
}

type RescheduleRequest struct {
	// StaffID and ServiceID keep their current values when nil.
	StaffID   uuid.UUID
	ServiceID uuid.UUID
	Start     time.Time
	Reason    string
}

// Reschedule moves the appointment to a new staff and time, recording the
// move in its history. The status returns to scheduled.
func (s *Service) Reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	reason := strings.TrimSpace(req.Reason)
	var slotReq slots.Request

	return s.transition(ctx, actor, id, mutation{
		action: access.ActionReschedule,
		event:  EventAppointmentRescheduled,
		reason: reason,
		apply: func(ctx context.Context, current Appointment, next *Appointment) (*RescheduleEntry, error) {
			staffID := req.StaffID
			if staffID == uuid.Nil {
				staffID = current.StaffID
			}
			serviceID := req.ServiceID
			if serviceID == uuid.Nil {
				serviceID = current.ServiceID
			}

			ref, err := s.loadRefs(ctx, current.CentreID, serviceID, staffID)
			if err != nil {
				return nil, err
			}
			if err := s.checkBookingWindow(ref.service, req.Start); err != nil {
				return nil, err
			}
			slotReq = slots.Request{
				CentreID:          ref.centre.ID,
				StaffID:           ref.staff.ID,
				ServiceID:         ref.service.ID,
				Date:              req.Start.In(ref.centre.Location()),
				IgnoreAppointment: current.ID,
			}
			if err := s.checkSlot(ctx, slotReq, req.Start); err != nil {
				return nil, err
			}

			start := req.Start.UTC()
			next.StaffID = ref.staff.ID
			next.StaffName = ref.staff.Name
			next.StartTime = start
			next.EndTime = start.Add(ref.service.Duration())
			if ref.service.ID != current.ServiceID {
				next.ServiceID = ref.service.ID
				next.ServiceName = ref.service.Name
				next.PriceCents = ref.service.PriceCents
			}

			return &RescheduleEntry{
				PreviousStart:   current.StartTime,
				PreviousEnd:     current.EndTime,
				PreviousStaffID: current.StaffID,
				NewStart:        next.StartTime,
				NewEnd:          next.EndTime,
				NewStaffID:      next.StaffID,
				Reason:          reason,
			}, nil
		},
		recheck: func(ctx context.Context, next Appointment) error {
			return s.checkSlot(ctx, slotReq, next.StartTime)
		},
	})
}

func (s *Service) transition(ctx context.Context, actor access.Actor, id uuid.UUID, m mutation) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment."+string(m.action), trace.WithAttributes(
		attribute.String("appointment_id", id.String()),
		attribute.String("actor_role", string(actor.Role)),
	))
	defer span.End()

	updated, err := s.applyTransition(ctx, actor, id, m)
	s.metrics.ObserveTransition(string(m.action), Outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
		s.logger.WarnContext(ctx, "transition rejected",
			"action", m.action,
			"appointment_id", id,
			"actor_id", actor.ID,
			"outcome", Outcome(err),
			"error", err,
		)
		return nil, err
	}
	s.logger.InfoContext(ctx, "appointment updated",
		"action", m.action,
		"appointment_id", id,
		"status", updated.Status,
	)
	return updated, nil
}

func (s *Service) applyTransition(ctx context.Context, actor access.Actor, id uuid.UUID, m mutation) (*Appointment, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if !s.access.CanMutate(actor, current.Target(), m.action) {
		return nil, fmt.Errorf("%w: %s may not %s appointment %s", ErrPermissionDenied, actor.Role, m.action, id)
	}

	to, err := NextStatus(current.Status, m.action)
	if err != nil {
		return nil, err
	}
	if RequiresNotice(m.action) {
		notice, err := s.noticeFor(ctx, current.ServiceID)
		if err != nil {
			return nil, err
		}
		if err := CheckNotice(current.StartTime, s.now(), notice); err != nil {
			return nil, err
		}
	}

	next := current.Clone()
	next.Status = to
	var entry *RescheduleEntry
	if m.apply != nil {
		if entry, err = m.apply(ctx, *current, &next); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	next.LastModifiedBy = actor.ID
	next.UpdatedAt = now
	if entry != nil {
		entry.Actor = actor.ID
		entry.Timestamp = now
	}

	var updated *Appointment
	commit := func(ctx context.Context) error {
		var err error
		updated, err = s.repo.Update(ctx, next, current.Version, entry)
		return err
	}
	if m.recheck != nil {
		err = s.locker.WithClaim(ctx, next.StaffID, next.StartTime, func(ctx context.Context) error {
			if err := m.recheck(ctx, next); err != nil {
				return err
			}
			return commit(ctx)
		})
	} else {
		err = commit(ctx)
	}
	if err != nil {
		return nil, classify(err)
	}

	s.view.Invalidate(*current)
	s.view.Invalidate(*updated)

	payload := map[string]any{
		"from": current.Status.Normalize(),
		"to":   updated.Status,
	}
	if m.reason != "" {
		payload["reason"] = m.reason
	}
	if entry != nil {
		payload["previous_start"] = entry.PreviousStart
		payload["new_start"] = entry.NewStart
		payload["new_staff_id"] = entry.NewStaffID.String()
	}
	s.logEvent(ctx, actor.ID, updated.ID, m.event, payload)

	switch m.action {
	case access.ActionCancel, access.ActionReschedule:
		s.publish(m.event, *updated, m.reason)
	}
	return updated, nil
}
