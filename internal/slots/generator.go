package slots

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/directory"
)

var ErrNotASlot = errors.New("start time is not a bookable slot")

type TimeSlot struct {
	StaffID   uuid.UUID `json:"staff_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Interval is a span of staff time already taken by an appointment.
type Interval struct {
	AppointmentID uuid.UUID
	Start         time.Time
	End           time.Time
}

// Bookings supplies the non-cancelled appointment intervals of a staff member
// that intersect [from, to).
type Bookings interface {
	BusyIntervals(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Interval, error)
}

// Window is a span of the day given as offsets from local midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

type Config struct {
	Step       time.Duration
	Day        Window   // used when the centre publishes no operating hours
	Exclusions []Window // never bookable, e.g. the midday break
}

func DefaultConfig() Config {
	return Config{
		Step:       30 * time.Minute,
		Day:        Window{Start: 9 * time.Hour, End: 17 * time.Hour},
		Exclusions: []Window{{Start: 12 * time.Hour, End: 13 * time.Hour}},
	}
}

type Request struct {
	CentreID  uuid.UUID // optional; uuid.Nil skips centre hours and eligibility
	StaffID   uuid.UUID
	ServiceID uuid.UUID
	Date      time.Time // only its year, month and day are used, in the centre's zone
	// IgnoreAppointment leaves one booking out of the busy set, so an
	// appointment being rescheduled does not collide with itself.
	IgnoreAppointment uuid.UUID
}

type Generator struct {
	resolver *directory.Resolver
	bookings Bookings
	cfg      Config
	now      func() time.Time
}

func NewGenerator(resolver *directory.Resolver, bookings Bookings, cfg Config) *Generator {
	return &Generator{
		resolver: resolver,
		bookings: bookings,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock swaps the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

func empty(func(TimeSlot) bool) {}

// Generate returns the day's candidate slots in start order. The booked set
// is read once, so ranging over the sequence again replays the same snapshot.
// Unknown or inactive staff, services or centres produce an empty sequence.
func (g *Generator) Generate(ctx context.Context, req Request) (iter.Seq[TimeSlot], error) {
	repo := g.resolver.Repository()

	staff, err := repo.GetStaff(ctx, req.StaffID)
	if err != nil {
		if errors.Is(err, directory.ErrStaffNotFound) {
			return empty, nil
		}
		return nil, fmt.Errorf("load staff: %w", err)
	}
	service, err := repo.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, directory.ErrServiceNotFound) {
			return empty, nil
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if !staff.Active || !service.Active || service.DurationMinutes <= 0 {
		return empty, nil
	}

	y, m, d := req.Date.Date()
	loc := time.UTC
	day := g.cfg.Day
	if req.CentreID != uuid.Nil {
		centre, err := repo.GetCentre(ctx, req.CentreID)
		if err != nil {
			if errors.Is(err, directory.ErrCentreNotFound) {
				return empty, nil
			}
			return nil, fmt.Errorf("load centre: %w", err)
		}
		eligible, err := g.resolver.IsEligible(ctx, centre.ID, service.ID, staff.ID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			return empty, nil
		}
		loc = centre.Location()
		var open bool
		day, open = g.dayWindow(*centre, time.Date(y, m, d, 0, 0, 0, 0, loc).Weekday())
		if !open {
			return empty, nil
		}
	}

	// offsets are wall-clock times of day, so a day with a DST change still
	// opens at the published hour.
	at := func(off time.Duration) time.Time {
		return time.Date(y, m, d, 0, 0, 0, int(off), loc)
	}
	busy, err := g.bookings.BusyIntervals(ctx, staff.ID, at(0), time.Date(y, m, d+1, 0, 0, 0, 0, loc))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	if req.IgnoreAppointment != uuid.Nil {
		kept := busy[:0:0]
		for _, b := range busy {
			if b.AppointmentID != req.IgnoreAppointment {
				kept = append(kept, b)
			}
		}
		busy = kept
	}

	var (
		duration   = service.Duration()
		step       = g.cfg.Step
		exclusions = g.cfg.Exclusions
		now        = g.now()
		staffID    = staff.ID
	)

	return func(yield func(TimeSlot) bool) {
		for off := day.Start; off+duration <= day.End; off += step {
			if overlapsWindow(off, off+duration, exclusions) {
				continue
			}
			start := at(off)
			end := start.Add(duration)
			slot := TimeSlot{
				StaffID:   staffID,
				Start:     start,
				End:       end,
				Available: !start.Before(now) && !overlapsAny(start, end, busy),
			}
			if !yield(slot) {
				return
			}
		}
	}, nil
}

// Check finds the slot starting at start and reports it as currently listed.
func (g *Generator) Check(ctx context.Context, req Request, start time.Time) (TimeSlot, error) {
	seq, err := g.Generate(ctx, req)
	if err != nil {
		return TimeSlot{}, err
	}
	for slot := range seq {
		if slot.Start.Equal(start) {
			return slot, nil
		}
	}
	return TimeSlot{}, ErrNotASlot
}

func (g *Generator) dayWindow(centre directory.Centre, weekday time.Weekday) (Window, bool) {
	if len(centre.OperatingHours) == 0 {
		return g.cfg.Day, true
	}
	hours, ok := centre.OperatingHours[weekday]
	if !ok {
		return Window{}, false
	}
	open, close, err := hours.Bounds()
	if err != nil {
		return Window{}, false
	}
	return Window{Start: open, End: close}, true
}

func overlapsWindow(start, end time.Duration, windows []Window) bool {
	for _, w := range windows {
		if start < w.End && w.Start < end {
			return true
		}
	}
	return false
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// half-open: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
