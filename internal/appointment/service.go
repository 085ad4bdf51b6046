package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/directory"
	"github.com/hackgods/wellness-scheduling/internal/metrics"
	"github.com/hackgods/wellness-scheduling/internal/notify"
	redisclient "github.com/hackgods/wellness-scheduling/internal/redis"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

const (
	EventAppointmentBooked      = notify.EventAppointmentBooked
	EventAppointmentCancelled   = notify.EventAppointmentCancelled
	EventAppointmentRescheduled = notify.EventAppointmentRescheduled
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentStarted     = "APPOINTMENT_STARTED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentNotes       = "APPOINTMENT_NOTES_UPDATED"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var tracer = otel.Tracer("github.com/hackgods/wellness-scheduling/internal/appointment")

// Publisher receives booking events. Publish must not block.
type Publisher interface {
	Publish(evt notify.Event)
}

type Options struct {
	// BookingTimeout bounds one booking commit. Zero means no bound.
	BookingTimeout time.Duration
	// CancellationNotice is the default notice cancel and reschedule need.
	CancellationNotice time.Duration
}

func DefaultOptions() Options {
	return Options{
		BookingTimeout:     5 * time.Second,
		CancellationNotice: 24 * time.Hour,
	}
}

type ServiceOption func(*Service)

func WithView(v View) ServiceOption {
	return func(s *Service) {
		if v != nil {
			s.view = v
		}
	}
}

func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.SchedulingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock swaps the time source used for window checks and audit fields.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// Service books appointments and drives their lifecycle. It is the only
// writer of appointment records.
type Service struct {
	repo      Repository
	directory *directory.Resolver
	slots     *slots.Generator
	access    *access.Resolver
	locker    redisclient.ClaimLocker
	view      View
	publisher Publisher
	metrics   *metrics.SchedulingMetrics
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

func NewService(
	repo Repository,
	dir *directory.Resolver,
	gen *slots.Generator,
	acc *access.Resolver,
	locker redisclient.ClaimLocker,
	opts Options,
	extra ...ServiceOption,
) *Service {
	if locker == nil {
		locker = redisclient.NoopClaimLocker{}
	}
	if opts.CancellationNotice <= 0 {
		opts.CancellationNotice = DefaultOptions().CancellationNotice
	}
	s := &Service{
		repo:      repo,
		directory: dir,
		slots:     gen,
		access:    acc,
		locker:    locker,
		view:      noopView{},
		logger:    slog.Default(),
		opts:      opts,
		now:       time.Now,
	}
	for _, o := range extra {
		o(s)
	}
	return s
}

// Get returns one appointment the actor can see.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if !s.access.Visible(actor).Allows(appt.Target()) {
		return nil, fmt.Errorf("%w: appointment %s", ErrPermissionDenied, id)
	}
	return appt, nil
}

type ListOptions struct {
	Statuses []Status
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

func (o ListOptions) isDefault() bool {
	return len(o.Statuses) == 0 && o.From.IsZero() && o.To.IsZero() && o.Limit == 0 && o.Offset == 0
}

// List returns the appointments visible to actor, most recently booked
// first. A client's unfiltered list is served from the view when cached.
func (s *Service) List(ctx context.Context, actor access.Actor, opts ListOptions) ([]Appointment, error) {
	scope := s.access.Visible(actor)
	if scope.Empty() {
		return []Appointment{}, nil
	}

	cacheable := actor.Role == access.RoleClient && opts.isDefault()
	if cacheable {
		if list, ok := s.view.Appointments(actor.ID); ok {
			return list, nil
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	found, err := s.repo.List(ctx, ListFilter{
		Scope:    scope,
		Statuses: opts.Statuses,
		From:     opts.From,
		To:       opts.To,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, classify(err)
	}

	visible := scope.Allows
	out := make([]Appointment, 0, len(found))
	for _, a := range found {
		if visible(a.Target()) {
			out = append(out, a)
		}
	}
	if cacheable {
		s.view.StoreAppointments(actor.ID, out)
	}
	return out, nil
}

// Clients lists the clients an admin may book for: those with appointments
// inside the admin's scope.
func (s *Service) Clients(ctx context.Context, actor access.Actor) ([]ClientRef, error) {
	if !actor.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins list clients", ErrPermissionDenied)
	}
	scope := s.access.Visible(actor)
	if scope.Empty() {
		return []ClientRef{}, nil
	}
	out, err := s.repo.Clients(ctx, scope)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// EligibleStaff lists who can deliver serviceID at centreID.
func (s *Service) EligibleStaff(ctx context.Context, actor access.Actor, centreID, serviceID uuid.UUID) ([]directory.StaffMember, error) {
	if !s.access.CanViewCentre(actor, centreID) {
		return nil, fmt.Errorf("%w: centre %s", ErrPermissionDenied, centreID)
	}
	staff, err := s.directory.EligibleStaff(ctx, centreID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return staff, nil
}

// AvailableSlots materialises the slot sequence for req, caching the result
// in the view.
func (s *Service) AvailableSlots(ctx context.Context, actor access.Actor, req slots.Request) ([]slots.TimeSlot, error) {
	if actor.ID == uuid.Nil {
		return nil, ErrPermissionDenied
	}
	if req.CentreID != uuid.Nil && !s.access.CanViewCentre(actor, req.CentreID) {
		return nil, fmt.Errorf("%w: centre %s", ErrPermissionDenied, req.CentreID)
	}
	cacheable := req.IgnoreAppointment == uuid.Nil
	if cacheable {
		if list, ok := s.view.Slots(req); ok {
			return list, nil
		}
	}
	seq, err := s.slots.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	list := slices.Collect(seq)
	if list == nil {
		list = []slots.TimeSlot{}
	}
	if cacheable {
		s.view.StoreSlots(req, list)
	}
	return list, nil
}

// domainErrors pass through classify untouched.
var domainErrors = []error{
	ErrInvalidClient,
	ErrSlotUnavailable,
	ErrPermissionDenied,
	ErrCancellationWindowExpired,
	ErrAppointmentFinalized,
	ErrServiceUnavailable,
	ErrAppointmentNotFound,
	ErrServiceNotOffered,
	ErrStaffNotEligible,
	ErrOutsideBookingWindow,
	ErrInvalidTransition,
	ErrReasonRequired,
	ErrStaleAppointment,
}

// classify folds infrastructure failures into the error taxonomy. Anything
// that is not already a domain error is treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	switch {
	case errors.Is(err, redisclient.ErrClaimNotAcquired):
		return fmt.Errorf("%w: another booking holds this slot", ErrSlotUnavailable)
	case errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

func (s *Service) logEvent(ctx context.Context, actorID, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID
	actor := actorID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		ActorID:       &actor,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}

	// the appointment is already committed; an audit failure must not undo it
	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.WarnContext(ctx, "insert event log",
			"event_type", eventType,
			"appointment_id", appointmentID,
			"error", err,
		)
	}
}

func (s *Service) publish(eventType string, appt Appointment, reason string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(notify.Event{
		Type:          eventType,
		AppointmentID: appt.ID,
		ClientID:      appt.ClientID,
		CentreID:      appt.CentreID,
		StaffID:       appt.StaffID,
		ServiceName:   appt.ServiceName,
		CentreName:    appt.CentreName,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Reason:        reason,
		OccurredAt:    s.now().UTC(),
	})
}
