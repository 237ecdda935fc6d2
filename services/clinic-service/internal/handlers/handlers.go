package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/session"
	"github.com/gorilla/mux"
)

type Handler struct {
	directory *directory.Directory
	registry  *directory.Registry
	sessions  *session.Manager
	logger    *slog.Logger
	now       func() time.Time
}

func New(dir *directory.Directory, reg *directory.Registry, sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		directory: dir,
		registry:  reg,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
	}
}

// Router mounts the clinic API under /api/v1. Everything except signup
// and login requires a bearer token.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	public := r.PathPrefix("/api/v1").Subrouter()
	public.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost)
	public.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(h.RequireSession)
	api.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)

	api.HandleFunc("/appointments", h.CreateAppointment).Methods(http.MethodPost)
	api.HandleFunc("/appointments", h.ListAppointments).Methods(http.MethodGet)
	api.HandleFunc("/appointments/upcoming", h.UpcomingAppointments).Methods(http.MethodGet)
	api.HandleFunc("/appointments/agenda.pdf", h.AgendaPDF).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}", h.GetAppointment).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}", h.DeleteAppointment).Methods(http.MethodDelete)
	api.HandleFunc("/appointments/{id}/cancel", h.CancelAppointment).Methods(http.MethodPost)

	api.HandleFunc("/patients", h.CreatePatient).Methods(http.MethodPost)
	api.HandleFunc("/patients", h.ListPatients).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id}", h.GetPatient).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id}", h.UpdatePatient).Methods(http.MethodPatch)
	api.HandleFunc("/patients/{id}", h.DeletePatient).Methods(http.MethodDelete)

	api.HandleFunc("/staff", h.CreateStaff).Methods(http.MethodPost)
	api.HandleFunc("/staff", h.ListStaff).Methods(http.MethodGet)
	api.HandleFunc("/staff/physicians", h.ListPhysicians).Methods(http.MethodGet)
	api.HandleFunc("/staff/{id}", h.GetStaff).Methods(http.MethodGet)
	api.HandleFunc("/staff/{id}", h.UpdateStaff).Methods(http.MethodPatch)
	api.HandleFunc("/staff/{id}", h.DeleteStaff).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps domain errors onto status codes. Backend failures are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrValidation),
		errors.Is(err, session.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, directory.ErrSlotTaken),
		errors.Is(err, directory.ErrCPFTaken),
		errors.Is(err, session.ErrEmailTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, directory.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, session.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, session.ErrNoSession):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, directory.ErrUnavailable),
		errors.Is(err, session.ErrUnavailable):
		h.logger.Error("backend unavailable", "err", err, "path", r.URL.Path)
		http.Error(w, "unexpected error", http.StatusBadGateway)
	default:
		h.logger.Error("request failed", "err", err, "path", r.URL.Path)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
