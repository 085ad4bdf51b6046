package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/appointment"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

type handlers struct {
	svc    *appointment.Service
	logger *slog.Logger
}

func (h *handlers) eligibleStaff(w http.ResponseWriter, r *http.Request) {
	centreID, ok := pathUUID(w, r, "centreID")
	if !ok {
		return
	}
	serviceID, ok := pathUUID(w, r, "serviceID")
	if !ok {
		return
	}

	staff, err := h.svc.EligibleStaff(r.Context(), actorOf(r), centreID, serviceID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, staffResponses(staff))
}

func (h *handlers) availableSlots(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathUUID(w, r, "staffID")
	if !ok {
		return
	}
	q := r.URL.Query()

	serviceID, err := uuid.Parse(q.Get("service"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service must be a valid UUID")
		return
	}
	centreID, err := optionalUUID(q.Get("centre"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_centre_id", "centre must be a valid UUID")
		return
	}
	date, err := time.Parse(time.DateOnly, q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	list, err := h.svc.AvailableSlots(r.Context(), actorOf(r), slots.Request{
		CentreID:  centreID,
		StaffID:   staffID,
		ServiceID: serviceID,
		Date:      date,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	actor := actorOf(r)
	var (
		book appointment.BookRequest
		err  error
	)
	if book.CentreID, err = uuid.Parse(req.CentreID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_centre_id", "centre_id must be a valid UUID")
		return
	}
	if book.ServiceID, err = uuid.Parse(req.ServiceID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return
	}
	if book.StaffID, err = uuid.Parse(req.StaffID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
		return
	}
	if req.StartTime.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time is required")
		return
	}
	if book.ClientID, err = optionalUUID(req.ClientID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
		return
	}
	if book.ClientID == uuid.Nil && actor.Role == access.RoleClient {
		book.ClientID = actor.ID
	}
	book.Start = req.StartTime
	book.Notes = req.Notes

	appt, err := h.svc.Book(r.Context(), actor, book)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	list, err := h.svc.List(r.Context(), actorOf(r), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), actorOf(r), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type transitionFunc func(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)

// transition adapts a lifecycle operation to a POST /appointments/{id}/...
// route.
func (h *handlers) transition(op transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := op(h, r, actorOf(r), id)
		if err != nil {
			if errors.Is(err, errBadBody) {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func confirmOp(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return h.svc.Confirm(r.Context(), actor, id)
}

func startOp(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return h.svc.Start(r.Context(), actor, id)
}

func completeOp(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return h.svc.Complete(r.Context(), actor, id)
}

func noShowOp(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return h.svc.MarkNoShow(r.Context(), actor, id)
}

func cancelOp(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errBadBody
	}
	return h.svc.Cancel(r.Context(), actor, id, req.Reason)
}

func rescheduleOp(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StartTime.IsZero() {
		return nil, errBadBody
	}
	staffID, err := optionalUUID(req.StaffID)
	if err != nil {
		return nil, errBadBody
	}
	serviceID, err := optionalUUID(req.ServiceID)
	if err != nil {
		return nil, errBadBody
	}
	return h.svc.Reschedule(r.Context(), actor, id, appointment.RescheduleRequest{
		StaffID:   staffID,
		ServiceID: serviceID,
		Start:     req.StartTime,
		Reason:    req.Reason,
	})
}

func notesOp(h *handlers, r *http.Request, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	var req NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errBadBody
	}
	return h.svc.UpdateNotes(r.Context(), actor, id, req.Notes)
}

func (h *handlers) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.Clients(r.Context(), actorOf(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// Helpers

type requestError string

func (e requestError) Error() string { return string(e) }

const errBadBody requestError = "malformed request body"

func actorOf(r *http.Request) access.Actor {
	actor, _ := ActorFromContext(r.Context())
	return actor
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func parseListOptions(r *http.Request) (appointment.ListOptions, error) {
	q := r.URL.Query()
	var opts appointment.ListOptions

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := appointment.Status(strings.TrimSpace(s))
			if !status.Valid() {
				return opts, requestError("unknown status " + strconv.Quote(string(status)))
			}
			opts.Statuses = append(opts.Statuses, status.Normalize())
		}
	}
	for key, dst := range map[string]*time.Time{"from": &opts.From, "to": &opts.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, requestError(key + " must be RFC3339")
		}
		*dst = t
	}
	for key, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, requestError(key + " must be a non-negative integer")
		}
		*dst = n
	}
	return opts, nil
}
