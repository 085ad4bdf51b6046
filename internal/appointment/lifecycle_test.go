package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/wellness-scheduling/internal/access"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		action  access.Action
		want    Status
		wantErr error
	}{
		{"confirm scheduled", StatusScheduled, access.ActionConfirm, StatusConfirmed, nil},
		{"confirm confirmed", StatusConfirmed, access.ActionConfirm, "", ErrInvalidTransition},
		{"start confirmed", StatusConfirmed, access.ActionStart, StatusInProgress, nil},
		{"complete in progress", StatusInProgress, access.ActionComplete, StatusCompleted, nil},
		{"complete scheduled", StatusScheduled, access.ActionComplete, StatusCompleted, nil},
		{"no-show confirmed", StatusConfirmed, access.ActionNoShow, StatusNoShow, nil},
		{"no-show in progress", StatusInProgress, access.ActionNoShow, "", ErrInvalidTransition},
		{"cancel confirmed", StatusConfirmed, access.ActionCancel, StatusCancelled, nil},
		{"cancel in progress", StatusInProgress, access.ActionCancel, "", ErrInvalidTransition},
		{"reschedule confirmed", StatusConfirmed, access.ActionReschedule, StatusScheduled, nil},
		{"legacy rescheduled marker", StatusRescheduled, access.ActionConfirm, StatusConfirmed, nil},
		{"notes keep status", StatusInProgress, access.ActionEditNotes, StatusInProgress, nil},
		{"completed is final", StatusCompleted, access.ActionEditNotes, "", ErrAppointmentFinalized},
		{"cancelled is final", StatusCancelled, access.ActionReschedule, "", ErrAppointmentFinalized},
		{"no-show is final", StatusNoShow, access.ActionCancel, "", ErrAppointmentFinalized},
		{"read is not a transition", StatusScheduled, access.ActionRead, "", ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.action)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckNotice(t *testing.T) {
	now := time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC)
	notice := 24 * time.Hour

	assert.ErrorIs(t, CheckNotice(now.Add(23*time.Hour), now, notice), ErrCancellationWindowExpired)
	assert.ErrorIs(t, CheckNotice(now.Add(24*time.Hour), now, notice), ErrCancellationWindowExpired, "exactly 24h is not enough")
	assert.NoError(t, CheckNotice(now.Add(25*time.Hour), now, notice))
	assert.ErrorIs(t, CheckNotice(now.Add(-time.Hour), now, notice), ErrCancellationWindowExpired)
}

func TestRequiresNotice(t *testing.T) {
	assert.True(t, RequiresNotice(access.ActionCancel))
	assert.True(t, RequiresNotice(access.ActionReschedule))
	assert.False(t, RequiresNotice(access.ActionComplete))
	assert.False(t, RequiresNotice(access.ActionNoShow))
}

func TestStatusNormalize(t *testing.T) {
	assert.Equal(t, StatusScheduled, StatusRescheduled.Normalize())
	assert.False(t, StatusRescheduled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(classify(assert.AnError)))
	assert.False(t, IsRetryable(ErrSlotUnavailable))
	assert.False(t, IsRetryable(ErrPermissionDenied))
	assert.Equal(t, "slot_unavailable", Outcome(ErrSlotUnavailable))
	assert.Equal(t, "success", Outcome(nil))
}
