package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/directory"
)

type CreateAppointmentRequest struct {
	CentreID  string    `json:"centre_id"`
	ServiceID string    `json:"service_id"`
	StaffID   string    `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	// ClientID may be omitted when a client books for themselves.
	ClientID string `json:"client_id,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RescheduleRequest struct {
	StaffID   string    `json:"staff_id,omitempty"`
	ServiceID string    `json:"service_id,omitempty"`
	StartTime time.Time `json:"start_time"`
	Reason    string    `json:"reason,omitempty"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type StaffResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Qualifications []string  `json:"qualifications,omitempty"`
}

func staffResponses(staff []directory.StaffMember) []StaffResponse {
	out := make([]StaffResponse, 0, len(staff))
	for _, s := range staff {
		out = append(out, StaffResponse{ID: s.ID, Name: s.Name, Qualifications: s.Qualifications})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
