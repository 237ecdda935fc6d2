package outbox

import (
	"encoding/json"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

const (
	TopicAppointmentBooked    = "clinic.appointment.booked.v1"
	TopicAppointmentCancelled = "clinic.appointment.cancelled.v1"
	TopicAppointmentUpdated   = "clinic.appointment.status_changed.v1"
)

// Topics lists every event type the service publishes.
var Topics = []string{TopicAppointmentBooked, TopicAppointmentCancelled, TopicAppointmentUpdated}

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type AppointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	StaffID       string `json:"staff_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurred_at"`
}

func NewAppointmentEvent(eventType string, a model.Appointment, at time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		StaffID:       a.StaffID,
		Date:          a.Date,
		Time:          a.Time,
		Type:          string(a.Type),
		Status:        string(a.Status),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// StatusEventType picks the topic announcing a move to status.
func StatusEventType(status model.AppointmentStatus) string {
	if status == model.StatusCancelled {
		return TopicAppointmentCancelled
	}
	return TopicAppointmentUpdated
}
