package handlers

import (
	"net/http"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/mask"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/gorilla/mux"
)

type patientRequest struct {
	Name      string `json:"name"`
	CPF       string `json:"cpf"`
	BirthDate string `json:"birth_date"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

type patientPatchRequest struct {
	Name      *string `json:"name"`
	BirthDate *string `json:"birth_date"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	Address   *string `json:"address"`
}

type patientResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CPF          string `json:"cpf"`
	CPFDisplay   string `json:"cpf_display"`
	BirthDate    string `json:"birth_date"`
	Phone        string `json:"phone"`
	PhoneDisplay string `json:"phone_display"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toPatientResponse(p model.Patient) patientResponse {
	return patientResponse{
		ID:           p.ID,
		Name:         p.Name,
		CPF:          p.CPF,
		CPFDisplay:   mask.CPF(p.CPF),
		BirthDate:    p.BirthDate,
		Phone:        p.Phone,
		PhoneDisplay: mask.Phone(p.Phone),
		Email:        p.Email,
		Address:      p.Address,
		CreatedAt:    formatTime(p.CreatedAt),
	}
}

type staffRequest struct {
	Name          string `json:"name"`
	CPF           string `json:"cpf"`
	Role          string `json:"role"`
	Specialty     string `json:"specialty"`
	LicenseNumber string `json:"license_number"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
}

type staffPatchRequest struct {
	Name          *string `json:"name"`
	Role          *string `json:"role"`
	Specialty     *string `json:"specialty"`
	LicenseNumber *string `json:"license_number"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
}

type staffResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CPF           string `json:"cpf"`
	CPFDisplay    string `json:"cpf_display"`
	Role          string `json:"role"`
	Specialty     string `json:"specialty,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
	Phone         string `json:"phone"`
	PhoneDisplay  string `json:"phone_display"`
	Email         string `json:"email,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toStaffResponse(s model.Staff) staffResponse {
	return staffResponse{
		ID:            s.ID,
		Name:          s.Name,
		CPF:           s.CPF,
		CPFDisplay:    mask.CPF(s.CPF),
		Role:          string(s.Role),
		Specialty:     s.Specialty,
		LicenseNumber: s.LicenseNumber,
		Phone:         s.Phone,
		PhoneDisplay:  mask.Phone(s.Phone),
		Email:         s.Email,
		CreatedAt:     formatTime(s.CreatedAt),
	}
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.registry.CreatePatient(r.Context(), directory.PatientInput(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(p))
}

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.registry.ListPatients(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]patientResponse, 0, len(patients))
	for _, p := range patients {
		out = append(out, toPatientResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.GetPatient(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(p))
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req patientPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.registry.UpdatePatient(r.Context(), mux.Vars(r)["id"], directory.PatientPatch(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(p))
}

func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.RemovePatient(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.registry.CreateStaff(r.Context(), directory.StaffInput{
		Name:          req.Name,
		CPF:           req.CPF,
		Role:          model.StaffRole(req.Role),
		Specialty:     req.Specialty,
		LicenseNumber: req.LicenseNumber,
		Phone:         req.Phone,
		Email:         req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStaffResponse(s))
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.registry.ListStaff(r.Context(), model.StaffRole(r.URL.Query().Get("role")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeStaffList(w, staff)
}

func (h *Handler) ListPhysicians(w http.ResponseWriter, r *http.Request) {
	staff, err := h.registry.ListPhysicians(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeStaffList(w, staff)
}

func writeStaffList(w http.ResponseWriter, staff []model.Staff) {
	out := make([]staffResponse, 0, len(staff))
	for _, s := range staff {
		out = append(out, toStaffResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.GetStaff(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStaffResponse(s))
}

func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch := directory.StaffPatch{
		Name:          req.Name,
		Specialty:     req.Specialty,
		LicenseNumber: req.LicenseNumber,
		Phone:         req.Phone,
		Email:         req.Email,
	}
	if req.Role != nil {
		role := model.StaffRole(*req.Role)
		patch.Role = &role
	}
	s, err := h.registry.UpdateStaff(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStaffResponse(s))
}

func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.RemoveStaff(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
