package agenda

import (
	"bytes"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

func TestRenderProducesPDF(t *testing.T) {
	entries := []directory.Entry{
		{
			Appointment: model.Appointment{ID: "a1", PatientID: "p1", StaffID: "s1", Time: "09:00", Type: model.TypeConsultation, Status: model.StatusScheduled, Notes: "Jejum de 8h"},
			Patient:     &model.Patient{Name: "João Conceição"},
			Staff:       &model.Staff{Name: "Dra. Lúcia"},
		},
		{
			Appointment: model.Appointment{ID: "a2", PatientID: "p9", StaffID: "s1", Time: "10:00", Type: model.TypeExam, Status: model.StatusCancelled},
		},
	}

	var buf bytes.Buffer
	if err := Render(&buf, "2024-12-25", entries, time.Date(2024, 12, 25, 8, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a PDF, got %q", buf.Bytes()[:8])
	}
}

func TestRenderManyPages(t *testing.T) {
	var entries []directory.Entry
	for i := 0; i < 120; i++ {
		entries = append(entries, directory.Entry{Appointment: model.Appointment{Time: "08:00", Type: model.TypeExam, Status: model.StatusScheduled}})
	}
	var buf bytes.Buffer
	if err := Render(&buf, "2024-12-25", entries, time.Now()); err != nil {
		t.Fatalf("render: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected output")
	}
}

func TestRenderEmptyDay(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "2024-12-25", nil, time.Now()); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatal("expected a PDF for an empty day")
	}
}
