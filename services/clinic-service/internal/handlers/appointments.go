package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/agenda"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/mask"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/gorilla/mux"
)

type appointmentRequest struct {
	PatientID string `json:"patient_id"`
	StaffID   string `json:"staff_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

type appointmentResponse struct {
	ID        string           `json:"id"`
	PatientID string           `json:"patient_id"`
	StaffID   string           `json:"staff_id"`
	Date      string           `json:"date"`
	Time      string           `json:"time"`
	Type      string           `json:"type"`
	Status    string           `json:"status"`
	Notes     string           `json:"notes,omitempty"`
	CreatedAt string           `json:"created_at"`
	Patient   *patientResponse `json:"patient,omitempty"`
	Staff     *staffResponse   `json:"staff,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		StaffID:   a.StaffID,
		Date:      a.Date,
		Time:      a.Time,
		Type:      string(a.Type),
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: formatTime(a.CreatedAt),
	}
}

func toEntryResponse(e directory.Entry) appointmentResponse {
	resp := toAppointmentResponse(e.Appointment)
	if e.Patient != nil {
		p := toPatientResponse(*e.Patient)
		resp.Patient = &p
	}
	if e.Staff != nil {
		s := toStaffResponse(*e.Staff)
		resp.Staff = &s
	}
	return resp
}

func toEntryResponses(entries []directory.Entry) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

// enrichParam reads ?enrich=, defaulting to true when absent.
func enrichParam(r *http.Request) (bool, bool) {
	v := r.URL.Query().Get("enrich")
	if v == "" {
		return true, true
	}
	enrich, err := strconv.ParseBool(v)
	return enrich, err == nil
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.directory.Create(r.Context(), directory.Draft{
		PatientID: req.PatientID,
		StaffID:   req.StaffID,
		Date:      req.Date,
		Time:      req.Time,
		Type:      model.AppointmentType(req.Type),
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// ListAppointments lists one day when ?date= is given, otherwise everything.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	enrich, ok := enrichParam(r)
	if !ok {
		http.Error(w, "enrich must be a boolean", http.StatusBadRequest)
		return
	}
	var (
		entries []directory.Entry
		err     error
	)
	if date := r.URL.Query().Get("date"); date != "" {
		entries, err = h.directory.ListByDate(r.Context(), date, enrich)
	} else {
		entries, err = h.directory.List(r.Context(), enrich)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

func (h *Handler) UpcomingAppointments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := h.directory.ListUpcoming(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

func (h *Handler) AgendaPDF(w http.ResponseWriter, r *http.Request) {
	date := mask.NormalizeDate(r.URL.Query().Get("date"))
	if date == "" {
		date = h.directory.Today()
	}
	entries, err := h.directory.ListByDate(r.Context(), date, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := agenda.Render(&buf, date, entries, h.now()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="agenda-`+date+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	entry, err := h.directory.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.directory.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
