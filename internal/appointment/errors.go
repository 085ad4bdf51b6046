package appointment

import "errors"

var (
	ErrInvalidClient             = errors.New("invalid client for booking")
	ErrSlotUnavailable           = errors.New("slot is no longer available")
	ErrPermissionDenied          = errors.New("permission denied")
	ErrCancellationWindowExpired = errors.New("cancellation window has expired")
	ErrAppointmentFinalized      = errors.New("appointment is finalized")
	ErrServiceUnavailable        = errors.New("service temporarily unavailable")

	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrServiceNotOffered    = errors.New("service is not offered at this centre")
	ErrStaffNotEligible     = errors.New("staff member is not eligible for this service at this centre")
	ErrOutsideBookingWindow = errors.New("start time is outside the booking window")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrReasonRequired       = errors.New("a reason is required")
	ErrStaleAppointment     = errors.New("appointment was modified concurrently")
)

// IsRetryable reports whether the caller may retry with backoff. Every other
// class is terminal for the attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// Outcome is a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, ErrCancellationWindowExpired):
		return "window_expired"
	case errors.Is(err, ErrAppointmentFinalized):
		return "finalized"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrStaleAppointment):
		return "stale"
	default:
		return "invalid"
	}
}
