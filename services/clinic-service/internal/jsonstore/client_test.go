package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
)

// fakeServer mimics the subset of json-server the client relies on:
// equality filters, the _ne operator, and item routes by id.
type fakeServer struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
	requests    []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{collections: map[string][]map[string]any{}}
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	resource := parts[0]
	items := s.collections[resource]

	find := func(id string) int {
		for i, item := range items {
			if item["id"] == id {
				return i
			}
		}
		return -1
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		out := []map[string]any{}
	next:
		for _, item := range items {
			for key, vals := range r.URL.Query() {
				if strings.HasPrefix(key, "_") {
					continue
				}
				if field, ok := strings.CutSuffix(key, "_ne"); ok {
					if item[field] == vals[0] {
						continue next
					}
					continue
				}
				if item[key] != vals[0] {
					continue next
				}
			}
			out = append(out, item)
		}
		_ = json.NewEncoder(w).Encode(out)
	case len(parts) == 1 && r.Method == http.MethodPost:
		var item map[string]any
		_ = json.NewDecoder(r.Body).Decode(&item)
		s.collections[resource] = append(items, item)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(item)
	case len(parts) == 2:
		i := find(parts[1])
		if i < 0 {
			http.Error(w, "{}", http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(items[i])
		case http.MethodPatch:
			var patch map[string]any
			_ = json.NewDecoder(r.Body).Decode(&patch)
			for k, v := range patch {
				items[i][k] = v
			}
			_ = json.NewEncoder(w).Encode(items[i])
		case http.MethodDelete:
			s.collections[resource] = append(items[:i], items[i+1:]...)
			_, _ = w.Write([]byte("{}"))
		}
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fake := newFakeServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(srv.URL, time.Second), fake
}

func TestAppointmentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	created := time.Date(2024, 12, 20, 12, 0, 0, 0, time.UTC)
	for _, a := range []model.Appointment{
		{ID: "a1", PatientID: "p1", StaffID: "S1", Date: "2024-12-25", Time: "10:00", Type: model.TypeExam, Status: model.StatusScheduled, CreatedAt: created},
		{ID: "a2", PatientID: "p2", StaffID: "S1", Date: "2024-12-25", Time: "09:00", Type: model.TypeConsultation, Status: model.StatusScheduled, CreatedAt: created},
		{ID: "a3", PatientID: "p3", StaffID: "S2", Date: "2024-12-26", Time: "09:00", Type: model.TypeUrgent, Status: model.StatusScheduled, CreatedAt: created},
	} {
		if err := c.CreateAppointment(ctx, a); err != nil {
			t.Fatalf("create %s: %v", a.ID, err)
		}
	}

	got, err := c.ListAppointments(ctx, storage.AppointmentFilter{Date: "2024-12-25"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a2" || got[1].ID != "a1" {
		t.Fatalf("unexpected listing %+v", got)
	}
	if !got[0].CreatedAt.Equal(created) || got[0].Type != model.TypeConsultation {
		t.Fatalf("fields not decoded: %+v", got[0])
	}

	cancelled, err := c.SetAppointmentStatus(ctx, "a1", model.StatusCancelled)
	if err != nil || cancelled.Status != model.StatusCancelled {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}

	active, err := c.ListAppointments(ctx, storage.AppointmentFilter{StaffID: "S1", Date: "2024-12-25", Time: "10:00", ActiveOnly: true})
	if err != nil || len(active) != 0 {
		t.Fatalf("cancelled appointment should not block the slot: %+v %v", active, err)
	}

	found := false
	for _, req := range fake.requests {
		if strings.Contains(req, "status_ne=cancelled") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected status_ne filter to be sent, got %v", fake.requests)
	}

	if err := c.DeleteAppointment(ctx, "a3"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetAppointment(ctx, "a3"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.SetAppointmentStatus(ctx, "missing", model.StatusCancelled); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNumericIDsDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 7, "name": "Dr. Ana", "cpf": "12345678901", "role": "physician", "licenseNumber": "CRM-1", "phone": "11987654321"}]`))
	}))
	defer srv.Close()

	staff, err := New(srv.URL, time.Second).ListStaff(context.Background(), storage.StaffFilter{Role: model.RolePhysician})
	if err != nil {
		t.Fatal(err)
	}
	if len(staff) != 1 || staff[0].ID != "7" || staff[0].LicenseNumber != "CRM-1" {
		t.Fatalf("unexpected staff %+v", staff)
	}
}

func TestPatientsAndUsers(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	p := model.Patient{ID: "p1", Name: "Maria", CPF: "12345678901", BirthDate: "1990-05-01", Phone: "11987654321"}
	if err := c.CreatePatient(ctx, p); err != nil {
		t.Fatal(err)
	}
	byCPF, err := c.ListPatients(ctx, storage.PatientFilter{CPF: "12345678901"})
	if err != nil || len(byCPF) != 1 {
		t.Fatalf("lookup by cpf: %+v %v", byCPF, err)
	}

	p.Phone = "1133334444"
	if err := c.UpdatePatient(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := c.GetPatient(ctx, "p1")
	if err != nil || got.Phone != "1133334444" || got.CPF != "12345678901" {
		t.Fatalf("update: %+v %v", got, err)
	}

	if err := c.CreateUser(ctx, model.User{ID: "u1", Name: "Ana", Email: "ana@clinic.test", PasswordHash: "x"}); err != nil {
		t.Fatal(err)
	}
	u, err := c.FindUserByEmail(ctx, " Ana@Clinic.test")
	if err != nil || u.ID != "u1" {
		t.Fatalf("find user: %+v %v", u, err)
	}
	if _, err := c.FindUserByEmail(ctx, "nobody@clinic.test"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServerErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ListAppointments(context.Background(), storage.AppointmentFilter{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
}
