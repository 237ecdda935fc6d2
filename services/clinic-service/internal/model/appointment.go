package model

import "time"

type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeFollowUp     AppointmentType = "follow-up"
	TypeExam         AppointmentType = "exam"
	TypeUrgent       AppointmentType = "urgent"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeExam, TypeUrgent:
		return true
	}
	return false
}

// AppointmentStatus follows scheduled -> in-progress -> completed, or
// scheduled -> cancelled.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID        string
	PatientID string
	StaffID   string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Type      AppointmentType
	Status    AppointmentStatus
	Notes     string
	CreatedAt time.Time
}

// Slot is the (staff, date, time) triple that may hold at most one
// non-cancelled appointment.
type Slot struct {
	StaffID string
	Date    string
	Time    string
}

func (a Appointment) Slot() Slot {
	return Slot{StaffID: a.StaffID, Date: a.Date, Time: a.Time}
}

func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}
