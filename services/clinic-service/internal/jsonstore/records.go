package jsonstore

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

// flexID accepts both "7" and 7: hand-seeded JSON-store files often use
// numeric ids.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = flexID(n.String())
	return nil
}

type appointmentRecord struct {
	ID        flexID `json:"id"`
	PatientID flexID `json:"patientId"`
	StaffID   flexID `json:"staffId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func fromAppointment(a model.Appointment) appointmentRecord {
	return appointmentRecord{
		ID:        flexID(a.ID),
		PatientID: flexID(a.PatientID),
		StaffID:   flexID(a.StaffID),
		Date:      a.Date,
		Time:      a.Time,
		Type:      string(a.Type),
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: formatTime(a.CreatedAt),
	}
}

func (r appointmentRecord) model() model.Appointment {
	return model.Appointment{
		ID:        string(r.ID),
		PatientID: string(r.PatientID),
		StaffID:   string(r.StaffID),
		Date:      r.Date,
		Time:      r.Time,
		Type:      model.AppointmentType(r.Type),
		Status:    model.AppointmentStatus(r.Status),
		Notes:     r.Notes,
		CreatedAt: parseTime(r.CreatedAt),
	}
}

type patientRecord struct {
	ID        flexID `json:"id"`
	Name      string `json:"name"`
	CPF       string `json:"cpf"`
	BirthDate string `json:"birthDate"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func fromPatient(p model.Patient) patientRecord {
	return patientRecord{
		ID:        flexID(p.ID),
		Name:      p.Name,
		CPF:       p.CPF,
		BirthDate: p.BirthDate,
		Phone:     p.Phone,
		Email:     p.Email,
		Address:   p.Address,
		CreatedAt: formatTime(p.CreatedAt),
	}
}

func (r patientRecord) model() model.Patient {
	return model.Patient{
		ID:        string(r.ID),
		Name:      r.Name,
		CPF:       r.CPF,
		BirthDate: r.BirthDate,
		Phone:     r.Phone,
		Email:     r.Email,
		Address:   r.Address,
		CreatedAt: parseTime(r.CreatedAt),
	}
}

type staffRecord struct {
	ID            flexID `json:"id"`
	Name          string `json:"name"`
	CPF           string `json:"cpf"`
	Role          string `json:"role"`
	Specialty     string `json:"specialty,omitempty"`
	LicenseNumber string `json:"licenseNumber,omitempty"`
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

func fromStaff(s model.Staff) staffRecord {
	return staffRecord{
		ID:            flexID(s.ID),
		Name:          s.Name,
		CPF:           s.CPF,
		Role:          string(s.Role),
		Specialty:     s.Specialty,
		LicenseNumber: s.LicenseNumber,
		Phone:         s.Phone,
		Email:         s.Email,
		CreatedAt:     formatTime(s.CreatedAt),
	}
}

func (r staffRecord) model() model.Staff {
	return model.Staff{
		ID:            string(r.ID),
		Name:          r.Name,
		CPF:           r.CPF,
		Role:          model.StaffRole(r.Role),
		Specialty:     r.Specialty,
		LicenseNumber: r.LicenseNumber,
		Phone:         r.Phone,
		Email:         r.Email,
		CreatedAt:     parseTime(r.CreatedAt),
	}
}

type userRecord struct {
	ID           flexID `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    string `json:"createdAt"`
}

func fromUser(u model.User) userRecord {
	return userRecord{
		ID:           flexID(u.ID),
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    formatTime(u.CreatedAt),
	}
}

func (r userRecord) model() model.User {
	return model.User{
		ID:           string(r.ID),
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    parseTime(r.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
