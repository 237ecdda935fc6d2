package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/kafkax"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

func TestNewAppointmentEvent(t *testing.T) {
	a := model.Appointment{
		ID: "a1", PatientID: "p1", StaffID: "s1",
		Date: "2024-12-25", Time: "09:00",
		Type: model.TypeExam, Status: model.StatusScheduled,
	}
	evt, err := NewAppointmentEvent(TopicAppointmentBooked, a, time.Date(2024, 12, 20, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewAppointmentEvent: %v", err)
	}
	if evt.AggregateID != "a1" || evt.EventType != TopicAppointmentBooked {
		t.Fatalf("unexpected event %+v", evt)
	}
	var payload AppointmentPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.StaffID != "s1" || payload.Type != "exam" || payload.OccurredAt != "2024-12-20T12:00:00Z" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestStatusEventType(t *testing.T) {
	if StatusEventType(model.StatusCancelled) != TopicAppointmentCancelled {
		t.Fatal("cancel should map to the cancelled topic")
	}
	if StatusEventType(model.StatusCompleted) != TopicAppointmentUpdated {
		t.Fatal("other statuses map to status_changed")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage(context.Background(), Record{
		ID: 7, EventID: "evt-7", AggregateID: "a1",
		EventType: TopicAppointmentCancelled, Payload: []byte(`{}`),
	})
	if msg.Topic != TopicAppointmentCancelled || string(msg.Key) != "a1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-7" || meta.EventType != TopicAppointmentCancelled {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
