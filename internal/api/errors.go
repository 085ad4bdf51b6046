package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hackgods/wellness-scheduling/internal/appointment"
	"github.com/hackgods/wellness-scheduling/internal/directory"
)

// retryAfterSeconds is sent with every 503 so clients back off before
// retrying a transient failure.
const retryAfterSeconds = "1"

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{appointment.ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	{appointment.ErrInvalidClient, http.StatusUnprocessableEntity, "invalid_client"},
	{appointment.ErrServiceNotOffered, http.StatusUnprocessableEntity, "service_not_offered"},
	{appointment.ErrStaffNotEligible, http.StatusUnprocessableEntity, "staff_not_eligible"},
	{appointment.ErrOutsideBookingWindow, http.StatusUnprocessableEntity, "outside_booking_window"},
	{appointment.ErrReasonRequired, http.StatusBadRequest, "reason_required"},
	{appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{appointment.ErrCancellationWindowExpired, http.StatusConflict, "cancellation_window_expired"},
	{appointment.ErrAppointmentFinalized, http.StatusConflict, "appointment_finalized"},
	{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},
	{appointment.ErrStaleAppointment, http.StatusConflict, "appointment_modified"},
	{appointment.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{directory.ErrCentreNotFound, http.StatusNotFound, "centre_not_found"},
	{directory.ErrServiceNotFound, http.StatusNotFound, "service_not_found"},
	{directory.ErrStaffNotFound, http.StatusNotFound, "staff_not_found"},
	{directory.ErrClientNotFound, http.StatusNotFound, "client_not_found"},
}

func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", retryAfterSeconds)
		}
		writeError(w, m.status, m.code, err.Error())
		return
	}

	logger.ErrorContext(r.Context(), "unhandled service error",
		"path", r.URL.Path,
		"request_id", GetRequestID(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
