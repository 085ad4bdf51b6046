package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.mustBook(f.staffM, at(9, 0))

	f.now = appt.StartTime.Add(-23 * time.Hour)
	_, err := f.svc.Cancel(ctx, f.clientActor, appt.ID, "feeling unwell")
	assert.ErrorIs(t, err, ErrCancellationWindowExpired)

	f.now = appt.StartTime.Add(-25 * time.Hour)
	cancelled, err := f.svc.Cancel(ctx, f.clientActor, appt.ID, "feeling unwell")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "feeling unwell", cancelled.CancellationReason)
	assert.Equal(t, f.client.ID, cancelled.LastModifiedBy)
	assert.True(t, cancelled.UpdatedAt.Equal(f.now))

	assert.Equal(t, []string{EventAppointmentBooked, EventAppointmentCancelled}, f.publisher.types())
}

func TestCancelNeedsReason(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(f.staffM, at(9, 0))

	_, err := f.svc.Cancel(context.Background(), f.clientActor, appt.ID, "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	stored, err := f.repo.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
}

func TestCancelFreesTheSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.mustBook(f.staffM, at(9, 0))
	_, err := f.svc.Cancel(ctx, f.clientActor, appt.ID, "double booked by mistake")
	require.NoError(t, err)

	req := f.bookRequest(f.staffM, at(9, 0))
	req.ClientID = f.client2.ID
	again, err := f.svc.Book(ctx, f.client2Actor, req)
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestServiceNoticeOverridesDefault(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(f.staffM, at(9, 0))

	strict := f.massage
	strict.Policy.CancellationNoticeHours = 48
	f.dir.PutService(strict)

	f.now = appt.StartTime.Add(-30 * time.Hour)
	_, err := f.svc.Cancel(context.Background(), f.clientActor, appt.ID, "travel")
	assert.ErrorIs(t, err, ErrCancellationWindowExpired)
}

func TestFinalizedAppointmentsRejectMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.mustBook(f.staffM, at(9, 0))

	_, err := f.svc.Cancel(ctx, f.clientActor, appt.ID, "changed plans")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.clientActor, appt.ID, "again")
	assert.ErrorIs(t, err, ErrAppointmentFinalized)
	_, err = f.svc.Confirm(ctx, f.adminA, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentFinalized)
	_, err = f.svc.Reschedule(ctx, f.adminA, appt.ID, RescheduleRequest{Start: at(14, 0)})
	assert.ErrorIs(t, err, ErrAppointmentFinalized)
	_, err = f.svc.UpdateNotes(ctx, f.adminA, appt.ID, "late note")
	assert.ErrorIs(t, err, ErrAppointmentFinalized)
}

func TestApprovalRequiredServiceNeedsAdminToConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.massage.Policy.ApprovalRequired = true
	f.dir.PutService(f.massage)
	appt := f.mustBook(f.staffM, at(9, 0))

	_, err := f.svc.Confirm(ctx, f.staffActor, appt.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	stored, err := f.repo.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)

	confirmed, err := f.svc.Confirm(ctx, f.adminA, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestOperationalLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.mustBook(f.staffM, at(9, 0))

	confirmed, err := f.svc.Confirm(ctx, f.staffActor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	f.now = at(9, 5)
	started, err := f.svc.Start(ctx, f.staffActor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	_, err = f.svc.MarkNoShow(ctx, f.staffActor, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	noted, err := f.svc.UpdateNotes(ctx, f.staffActor, appt.ID, "prefers light pressure")
	require.NoError(t, err)
	assert.Equal(t, "prefers light pressure", noted.Notes)
	assert.Equal(t, StatusInProgress, noted.Status)

	completed, err := f.svc.Complete(ctx, f.staffActor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, f.staffM.ID, completed.LastModifiedBy)
}

func TestNoShowHasNoTimeWindow(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(f.staffM, at(9, 0))

	f.now = at(10, 30)
	out, err := f.svc.MarkNoShow(context.Background(), f.adminA, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, out.Status)
}

func TestMutationScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.mustBook(f.staffM, at(9, 0))

	_, err := f.svc.Cancel(ctx, f.adminB, appt.ID, "not mine")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.Complete(ctx, f.clientActor, appt.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied, "clients cannot complete")
	_, err = f.svc.MarkNoShow(ctx, f.clientActor, appt.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied, "clients cannot mark no-show")

	_, err = f.svc.Cancel(ctx, f.client2Actor, appt.ID, "someone else's")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.Reschedule(ctx, f.staffActor, appt.ID, RescheduleRequest{Start: at(14, 0)})
	assert.ErrorIs(t, err, ErrPermissionDenied, "staff only touch operational fields")

	noah := f.staffActor
	noah.ID = f.staffN.ID
	_, err = f.svc.Confirm(ctx, noah, appt.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied, "staff mutate only their own appointments")

	out, err := f.svc.Cancel(ctx, f.super, appt.ID, "centre closure")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Status)
}

func TestRescheduleAppendsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.mustBook(f.staffM, at(9, 0))

	_, err := f.svc.Confirm(ctx, f.staffActor, appt.ID)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(ctx, f.adminA, appt.ID, RescheduleRequest{
		StaffID: f.staffN.ID,
		Start:   at(14, 0),
		Reason:  "therapist sick",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, moved.Status)
	assert.Equal(t, f.staffN.ID, moved.StaffID)
	assert.Equal(t, "Noah", moved.StaffName)
	assert.True(t, moved.EndTime.Equal(at(15, 0)))
	require.Len(t, moved.RescheduleHistory, 1)

	first := moved.RescheduleHistory[0]
	assert.True(t, first.PreviousStart.Equal(at(9, 0)))
	assert.Equal(t, f.staffM.ID, first.PreviousStaffID)
	assert.True(t, first.NewStart.Equal(at(14, 0)))
	assert.Equal(t, f.staffN.ID, first.NewStaffID)
	assert.Equal(t, "therapist sick", first.Reason)
	assert.Equal(t, f.adminA.ID, first.Actor)

	again, err := f.svc.Reschedule(ctx, f.adminA, appt.ID, RescheduleRequest{
		ServiceID: f.facial.ID,
		Start:     at(15, 30),
	})
	require.NoError(t, err)
	require.Len(t, again.RescheduleHistory, 2)
	assert.Equal(t, first, again.RescheduleHistory[0], "earlier entries never change")
	assert.True(t, again.EndTime.Equal(at(16, 0)), "end follows the new service duration")
	assert.Equal(t, int64(4500), again.PriceCents)
	assert.Equal(t, "Express Facial", again.ServiceName)

	stored, err := f.svc.Get(ctx, f.clientActor, appt.ID)
	require.NoError(t, err)
	assert.Len(t, stored.RescheduleHistory, 2)

	// the old slot is free again
	req := f.bookRequest(f.staffM, at(9, 0))
	req.ClientID = f.client2.ID
	_, err = f.svc.Book(ctx, f.client2Actor, req)
	require.NoError(t, err)
}

func TestRescheduleOverlappingItself(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(f.staffM, at(9, 0))

	moved, err := f.svc.Reschedule(context.Background(), f.adminA, appt.ID, RescheduleRequest{Start: at(9, 30)})
	require.NoError(t, err)
	assert.True(t, moved.StartTime.Equal(at(9, 30)))
	assert.Len(t, moved.RescheduleHistory, 1)
}

func TestRescheduleIntoTakenSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.mustBook(f.staffM, at(9, 0))

	req := f.bookRequest(f.staffM, at(14, 0))
	req.ClientID = f.client2.ID
	_, err := f.svc.Book(ctx, f.client2Actor, req)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, f.adminA, appt.ID, RescheduleRequest{Start: at(14, 30)})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	stored, err := f.repo.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RescheduleHistory)
	assert.True(t, stored.StartTime.Equal(at(9, 0)))
}

func TestRescheduleWindow(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(f.staffM, at(9, 0))

	f.now = appt.StartTime.Add(-2 * time.Hour)
	_, err := f.svc.Reschedule(context.Background(), f.adminA, appt.ID, RescheduleRequest{Start: at(14, 0)})
	assert.ErrorIs(t, err, ErrCancellationWindowExpired)
}

func TestRescheduleToIneligibleStaff(t *testing.T) {
	f := newFixture(t)
	appt := f.mustBook(f.staffM, at(9, 0))

	_, err := f.svc.Reschedule(context.Background(), f.adminA, appt.ID, RescheduleRequest{
		StaffID: f.staffB.ID,
		Start:   at(14, 0),
	})
	assert.ErrorIs(t, err, ErrStaffNotEligible)
}

type staleRepo struct {
	*MemoryRepository
}

func (r staleRepo) Update(ctx context.Context, appt Appointment, expected int64, entry *RescheduleEntry) (*Appointment, error) {
	return r.MemoryRepository.Update(ctx, appt, expected-1, entry)
}

func TestConcurrentModificationIsReported(t *testing.T) {
	f := newFixture(t, withRepo(staleRepo{NewMemoryRepository()}))
	appt, err := f.svc.Book(context.Background(), f.clientActor, f.bookRequest(f.staffM, at(9, 0)))
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), f.adminA, appt.ID)
	assert.ErrorIs(t, err, ErrStaleAppointment)
}

func TestDefaultNoticeIsConfigurable(t *testing.T) {
	f := newFixture(t, withOptions(Options{CancellationNotice: 72 * time.Hour}))
	appt := f.mustBook(f.staffM, at(9, 0))

	_, err := f.svc.Cancel(context.Background(), f.clientActor, appt.ID, "too late for a 72h policy")
	assert.ErrorIs(t, err, ErrCancellationWindowExpired)
}
