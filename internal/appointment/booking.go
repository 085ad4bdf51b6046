package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/directory"
	"github.com/hackgods/wellness-scheduling/internal/optimistic"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

type BookRequest struct {
	CentreID  uuid.UUID
	ServiceID uuid.UUID
	StaffID   uuid.UUID
	Start     time.Time
	ClientID  uuid.UUID
	Notes     string
}

// Book creates a scheduled appointment for req.ClientID.
//
// The slot is checked, then the view is updated as if the booking succeeded
// while the write commits under the (staff, start) claim. The store's
// conditional insert decides races; on any failure or timeout the view is
// restored.
func (s *Service) Book(ctx context.Context, actor access.Actor, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Book", trace.WithAttributes(
		attribute.String("centre_id", req.CentreID.String()),
		attribute.String("service_id", req.ServiceID.String()),
		attribute.String("staff_id", req.StaffID.String()),
		attribute.String("start", req.Start.UTC().Format(time.RFC3339)),
		attribute.String("actor_role", string(actor.Role)),
	))
	defer span.End()

	began := time.Now()
	appt, err := s.book(ctx, actor, req)
	s.metrics.ObserveBooking(Outcome(err), time.Since(began))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
		s.logger.WarnContext(ctx, "booking rejected",
			"actor_id", actor.ID,
			"staff_id", req.StaffID,
			"start", req.Start,
			"outcome", Outcome(err),
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment_id", appt.ID.String()))
	s.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", appt.ID,
		"client_id", appt.ClientID,
		"staff_id", appt.StaffID,
		"start", appt.StartTime,
	)
	return appt, nil
}

func (s *Service) book(ctx context.Context, actor access.Actor, req BookRequest) (*Appointment, error) {
	if req.ClientID == uuid.Nil {
		return nil, fmt.Errorf("%w: a client must be selected", ErrInvalidClient)
	}
	if actor.Role.IsAdmin() && req.ClientID == actor.ID {
		return nil, fmt.Errorf("%w: admins cannot book for themselves", ErrInvalidClient)
	}
	if !s.access.CanBook(actor, req.CentreID, req.ClientID) {
		return nil, fmt.Errorf("%w: %s cannot book at centre %s", ErrPermissionDenied, actor.Role, req.CentreID)
	}

	ref, err := s.loadRefs(ctx, req.CentreID, req.ServiceID, req.StaffID)
	if err != nil {
		return nil, err
	}
	client, err := s.directory.Repository().GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, directory.ErrClientNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidClient, err)
		}
		return nil, fmt.Errorf("%w: load client: %w", ErrServiceUnavailable, err)
	}

	if err := s.checkBookingWindow(ref.service, req.Start); err != nil {
		return nil, err
	}

	slotReq := slots.Request{
		CentreID:  ref.centre.ID,
		StaffID:   ref.staff.ID,
		ServiceID: ref.service.ID,
		Date:      req.Start.In(ref.centre.Location()),
	}
	if err := s.checkSlot(ctx, slotReq, req.Start); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	start := req.Start.UTC()
	appt := Appointment{
		ID:             uuid.New(),
		ClientID:       client.ID,
		CentreID:       ref.centre.ID,
		ServiceID:      ref.service.ID,
		StaffID:        ref.staff.ID,
		StartTime:      start,
		EndTime:        start.Add(ref.service.Duration()),
		Status:         StatusScheduled,
		Notes:          strings.TrimSpace(req.Notes),
		PriceCents:     ref.service.PriceCents,
		ClientName:     client.Name,
		ServiceName:    ref.service.Name,
		StaffName:      ref.staff.Name,
		CentreName:     ref.centre.Name,
		CreatedBy:      actor.ID,
		LastModifiedBy: actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	update := optimistic.Combine(
		s.view.OccupyInterval(appt.StaffID, appt.StartTime, appt.EndTime),
		s.view.PrependAppointment(appt),
	)
	created, err := optimistic.WithUpdate(ctx, update, s.opts.BookingTimeout, func(ctx context.Context) (*Appointment, error) {
		var out *Appointment
		err := s.locker.WithClaim(ctx, appt.StaffID, appt.StartTime, func(ctx context.Context) error {
			if err := s.checkSlot(ctx, slotReq, appt.StartTime); err != nil {
				return err
			}
			var err error
			out, err = s.repo.Create(ctx, appt)
			return err
		})
		return out, err
	})
	if err != nil {
		s.metrics.ObserveRollback()
		return nil, classify(err)
	}

	s.logEvent(ctx, actor.ID, created.ID, EventAppointmentBooked, map[string]any{
		"client_id":  created.ClientID.String(),
		"staff_id":   created.StaffID.String(),
		"start_time": created.StartTime,
		"end_time":   created.EndTime,
	})
	s.publish(EventAppointmentBooked, *created, "")
	return created, nil
}

type refs struct {
	centre  directory.Centre
	service directory.Service
	staff   directory.StaffMember
}

// loadRefs resolves and validates the entities an appointment points at.
func (s *Service) loadRefs(ctx context.Context, centreID, serviceID, staffID uuid.UUID) (refs, error) {
	repo := s.directory.Repository()

	centre, err := repo.GetCentre(ctx, centreID)
	if err != nil {
		return refs{}, lookupErr("centre", err)
	}
	service, err := repo.GetService(ctx, serviceID)
	if err != nil {
		return refs{}, lookupErr("service", err)
	}
	staff, err := repo.GetStaff(ctx, staffID)
	if err != nil {
		return refs{}, lookupErr("staff", err)
	}
	if !centre.Active || !service.Active || !centre.Offers(service.ID) {
		return refs{}, fmt.Errorf("%w: %s at %s", ErrServiceNotOffered, service.Name, centre.Name)
	}

	eligible, err := s.directory.IsEligible(ctx, centre.ID, service.ID, staff.ID)
	if err != nil {
		return refs{}, fmt.Errorf("%w: resolve staff: %w", ErrServiceUnavailable, err)
	}
	if !eligible {
		return refs{}, fmt.Errorf("%w: %s", ErrStaffNotEligible, staff.Name)
	}
	return refs{centre: *centre, service: *service, staff: *staff}, nil
}

func lookupErr(what string, err error) error {
	if errors.Is(err, directory.ErrCentreNotFound) ||
		errors.Is(err, directory.ErrServiceNotFound) ||
		errors.Is(err, directory.ErrStaffNotFound) {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return fmt.Errorf("%w: load %s: %w", ErrServiceUnavailable, what, err)
}

// checkBookingWindow keeps starts in the future and within the service's
// advance booking limit.
func (s *Service) checkBookingWindow(service directory.Service, start time.Time) error {
	now := s.now()
	if !start.After(now) {
		return fmt.Errorf("%w: %s is in the past", ErrOutsideBookingWindow, start.Format(time.RFC3339))
	}
	if days := service.Policy.AdvanceBookingDays; days > 0 && start.After(now.AddDate(0, 0, days)) {
		return fmt.Errorf("%w: %s books at most %d days ahead", ErrOutsideBookingWindow, service.Name, days)
	}
	return nil
}

// checkSlot re-reads the slot grid and requires start to be a free slot.
func (s *Service) checkSlot(ctx context.Context, req slots.Request, start time.Time) error {
	slot, err := s.slots.Check(ctx, req, start)
	switch {
	case errors.Is(err, slots.ErrNotASlot):
		return fmt.Errorf("%w: %s is not a bookable start", ErrSlotUnavailable, start.UTC().Format(time.RFC3339))
	case err != nil:
		return fmt.Errorf("%w: check slot: %w", ErrServiceUnavailable, err)
	case !slot.Available:
		return fmt.Errorf("%w: %s is taken", ErrSlotUnavailable, start.UTC().Format(time.RFC3339))
	}
	return nil
}

// noticeFor is the notice a service requires before cancel or reschedule.
func (s *Service) noticeFor(ctx context.Context, serviceID uuid.UUID) (time.Duration, error) {
	service, err := s.directory.Repository().GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, directory.ErrServiceNotFound) {
			return s.opts.CancellationNotice, nil
		}
		return 0, fmt.Errorf("%w: load service: %w", ErrServiceUnavailable, err)
	}
	if h := service.Policy.CancellationNoticeHours; h > 0 {
		return time.Duration(h) * time.Hour, nil
	}
	return s.opts.CancellationNotice, nil
}
