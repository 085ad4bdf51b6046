package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

// Event is what reminder and notification systems receive about a booking.
type Event struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	ClientID      uuid.UUID `json:"client_id"`
	CentreID      uuid.UUID `json:"centre_id"`
	StaffID       uuid.UUID `json:"staff_id"`
	ServiceName   string    `json:"service_name"`
	CentreName    string    `json:"centre_name"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Sink delivers one event to a downstream system.
type Sink interface {
	Deliver(ctx context.Context, evt Event) error
}

// Dispatcher hands events to a sink in the background. Delivery failures are
// logged and never reach the caller.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sink Sink, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{sink: sink, logger: logger, timeout: timeout}
}

func (d *Dispatcher) Publish(evt Event) {
	if d == nil || d.sink == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("notify: sink panicked", "event_type", evt.Type, "appointment_id", evt.AppointmentID, "panic", p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.sink.Deliver(ctx, evt); err != nil {
			d.logger.Warn("notify: delivery failed", "event_type", evt.Type, "appointment_id", evt.AppointmentID, "error", err)
		}
	}()
}

// Close waits for in-flight deliveries or until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes events to the logger, for deployments without a broker.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, evt Event) error {
	s.Logger.InfoContext(ctx, "notify: event",
		"event_type", evt.Type,
		"appointment_id", evt.AppointmentID,
		"client_id", evt.ClientID,
		"start_time", evt.StartTime,
	)
	return nil
}
