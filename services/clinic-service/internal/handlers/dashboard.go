package handlers

import (
	"net/http"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
)

type dashboardResponse struct {
	Date        string                `json:"date"`
	Agenda      []appointmentResponse `json:"agenda"`
	Upcoming    []appointmentResponse `json:"upcoming"`
	Counts      map[string]int        `json:"counts"`
	RefreshedAt string                `json:"refreshed_at"`
	Cached      bool                  `json:"cached"`
}

// Dashboard refreshes the day view, or with ?cached=1 serves the last
// snapshot when there is one.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if cached := r.URL.Query().Get("cached"); cached == "1" || cached == "true" {
		if snap, ok := h.directory.Snapshot(); ok {
			writeJSON(w, http.StatusOK, toDashboardResponse(snap, true))
			return
		}
	}
	snap, err := h.directory.Refresh(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(snap, false))
}

func toDashboardResponse(s directory.Snapshot, cached bool) dashboardResponse {
	counts := make(map[string]int, len(s.Counts))
	for status, n := range s.Counts {
		counts[string(status)] = n
	}
	return dashboardResponse{
		Date:        s.Date,
		Agenda:      toEntryResponses(s.Agenda),
		Upcoming:    toEntryResponses(s.Upcoming),
		Counts:      counts,
		RefreshedAt: formatTime(s.RefreshedAt),
		Cached:      cached,
	}
}
