package appointment

import (
	"fmt"
	"slices"
	"time"

	"github.com/hackgods/wellness-scheduling/internal/access"
)

// transition is one edge set of the lifecycle graph.
type transition struct {
	from []Status
	// to is empty when the action keeps the current status.
	to Status
	// notice means the action must happen before the cancellation window.
	notice bool
}

var transitions = map[access.Action]transition{
	access.ActionConfirm: {
		from: []Status{StatusScheduled},
		to:   StatusConfirmed,
	},
	access.ActionStart: {
		from: []Status{StatusScheduled, StatusConfirmed},
		to:   StatusInProgress,
	},
	access.ActionComplete: {
		from: []Status{StatusScheduled, StatusConfirmed, StatusInProgress},
		to:   StatusCompleted,
	},
	access.ActionNoShow: {
		from: []Status{StatusScheduled, StatusConfirmed},
		to:   StatusNoShow,
	},
	access.ActionCancel: {
		from:   []Status{StatusScheduled, StatusConfirmed},
		to:     StatusCancelled,
		notice: true,
	},
	access.ActionReschedule: {
		from:   []Status{StatusScheduled, StatusConfirmed},
		to:     StatusScheduled,
		notice: true,
	},
	access.ActionEditNotes: {
		from: []Status{StatusScheduled, StatusConfirmed, StatusInProgress},
	},
}

// NextStatus returns the status action moves current to.
func NextStatus(current Status, action access.Action) (Status, error) {
	current = current.Normalize()
	if current.Terminal() {
		return "", fmt.Errorf("%w: appointment is %s", ErrAppointmentFinalized, current)
	}
	t, ok := transitions[action]
	if !ok || !slices.Contains(t.from, current) {
		return "", fmt.Errorf("%w: cannot %s a %s appointment", ErrInvalidTransition, action, current)
	}
	if t.to == "" {
		return current, nil
	}
	return t.to, nil
}

// RequiresNotice reports whether action is bound by the cancellation window.
func RequiresNotice(action access.Action) bool {
	return transitions[action].notice
}

// CheckNotice passes only while start is strictly more than notice away.
func CheckNotice(start, now time.Time, notice time.Duration) error {
	if start.Sub(now) > notice {
		return nil
	}
	return fmt.Errorf("%w: changes need %s notice, appointment starts in %s",
		ErrCancellationWindowExpired, notice, start.Sub(now).Truncate(time.Minute))
}
