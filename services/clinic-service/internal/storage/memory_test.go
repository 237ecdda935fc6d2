package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

func appt(id, staffID, date, tm string) model.Appointment {
	return model.Appointment{
		ID:        id,
		PatientID: "p1",
		StaffID:   staffID,
		Date:      date,
		Time:      tm,
		Type:      model.TypeConsultation,
		Status:    model.StatusScheduled,
		CreatedAt: time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestMemoryCreateAppointmentRejectsActiveSlot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreateAppointment(ctx, appt("a1", "S1", "2024-12-25", "09:00")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := m.CreateAppointment(ctx, appt("a2", "S1", "2024-12-25", "09:00")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := m.CreateAppointment(ctx, appt("a3", "S2", "2024-12-25", "09:00")); err != nil {
		t.Fatalf("other staff should be free: %v", err)
	}

	if _, err := m.SetAppointmentStatus(ctx, "a1", model.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.CreateAppointment(ctx, appt("a4", "S1", "2024-12-25", "09:00")); err != nil {
		t.Fatalf("cancelled slot should be reusable: %v", err)
	}
	if _, err := m.SetAppointmentStatus(ctx, "a1", model.StatusScheduled); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("reactivating into a taken slot should fail, got %v", err)
	}
}

func TestMemoryConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := appt(string(rune('A'+i)), "S1", "2024-12-25", "09:00")
			if err := m.CreateAppointment(ctx, a); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestMemoryListAppointmentsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, a := range []model.Appointment{
		appt("a1", "S1", "2024-12-25", "14:00"),
		appt("a2", "S2", "2024-12-25", "08:30"),
		appt("a3", "S1", "2024-12-26", "07:00"),
	} {
		if err := m.CreateAppointment(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := m.SetAppointmentStatus(ctx, "a1", model.StatusCancelled); err != nil {
		t.Fatal(err)
	}

	got, err := m.ListAppointments(ctx, AppointmentFilter{Date: "2024-12-25"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a2" || got[1].ID != "a1" {
		t.Fatalf("unexpected listing %+v", got)
	}

	got, _ = m.ListAppointments(ctx, AppointmentFilter{Date: "2024-12-25", ActiveOnly: true})
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("ActiveOnly should drop cancelled, got %+v", got)
	}
}

func TestMemoryUniqueCPFAndEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreatePatient(ctx, model.Patient{ID: "p1", CPF: "12345678901"}); err != nil {
		t.Fatal(err)
	}
	if err := m.CreatePatient(ctx, model.Patient{ID: "p2", CPF: "12345678901"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate CPF, got %v", err)
	}
	if err := m.CreateStaff(ctx, model.Staff{ID: "s1", CPF: "12345678901"}); err != nil {
		t.Fatalf("staff and patients are separate registries: %v", err)
	}

	if err := m.CreateUser(ctx, model.User{ID: "u1", Email: "Ana@Clinic.test"}); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateUser(ctx, model.User{ID: "u2", Email: "ana@clinic.test "}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if u, err := m.FindUserByEmail(ctx, "ANA@clinic.test"); err != nil || u.ID != "u1" {
		t.Fatalf("lookup should be case-insensitive: %+v %v", u, err)
	}
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.SetAppointmentStatus(ctx, "missing", model.StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if err := m.DeleteStaff(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if _, err := m.GetPatient(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}
