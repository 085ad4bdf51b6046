package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/wellness-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service   *appointment.Service
	JWTSecret string
	Checks    []Check
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	h := &handlers{svc: cfg.Service, logger: logger}
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Get("/centres/{centreID}/services/{serviceID}/staff", h.eligibleStaff)
		r.Get("/staff/{staffID}/slots", h.availableSlots)
		r.Get("/clients", h.listClients)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.bookAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/confirm", h.transition(confirmOp))
			r.Post("/{id}/start", h.transition(startOp))
			r.Post("/{id}/complete", h.transition(completeOp))
			r.Post("/{id}/no-show", h.transition(noShowOp))
			r.Post("/{id}/cancel", h.transition(cancelOp))
			r.Post("/{id}/reschedule", h.transition(rescheduleOp))
			r.Patch("/{id}/notes", h.transition(notesOp))
		})
	})

	return r
}
