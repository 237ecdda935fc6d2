package storage

import (
	"context"
	"errors"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// AppointmentFilter narrows ListAppointments. Zero fields match anything.
type AppointmentFilter struct {
	PatientID  string
	StaffID    string
	Date       string
	Time       string
	Status     model.AppointmentStatus
	ActiveOnly bool // excludes cancelled appointments
}

func (f AppointmentFilter) Match(a model.Appointment) bool {
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.StaffID != "" && a.StaffID != f.StaffID {
		return false
	}
	if f.Date != "" && a.Date != f.Date {
		return false
	}
	if f.Time != "" && a.Time != f.Time {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.ActiveOnly && !a.Active() {
		return false
	}
	return true
}

type PatientFilter struct {
	CPF string
}

type StaffFilter struct {
	CPF  string
	Role model.StaffRole
}

type AppointmentStore interface {
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// CreateAppointment persists appt. Stores that can enforce the slot
	// invariant atomically return ErrDuplicate when an active appointment
	// already holds the slot.
	CreateAppointment(ctx context.Context, appt model.Appointment) error
	SetAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) (model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
}

type PatientStore interface {
	ListPatients(ctx context.Context, f PatientFilter) ([]model.Patient, error)
	GetPatient(ctx context.Context, id string) (model.Patient, error)
	CreatePatient(ctx context.Context, p model.Patient) error
	UpdatePatient(ctx context.Context, p model.Patient) error
	DeletePatient(ctx context.Context, id string) error
}

type StaffStore interface {
	ListStaff(ctx context.Context, f StaffFilter) ([]model.Staff, error)
	GetStaff(ctx context.Context, id string) (model.Staff, error)
	CreateStaff(ctx context.Context, s model.Staff) error
	UpdateStaff(ctx context.Context, s model.Staff) error
	DeleteStaff(ctx context.Context, id string) error
}

type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) error
}

// Backend is everything the clinic service persists.
type Backend interface {
	AppointmentStore
	PatientStore
	StaffStore
	UserStore
	Ping(ctx context.Context) error
}
