package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

// Memory keeps every record in process. One mutex guards all maps, so the
// slot, CPF and email uniqueness checks are atomic with the insert.
type Memory struct {
	mu           sync.Mutex
	appointments map[string]model.Appointment
	patients     map[string]model.Patient
	staff        map[string]model.Staff
	users        map[string]model.User
}

func NewMemory() *Memory {
	return &Memory{
		appointments: map[string]model.Appointment{},
		patients:     map[string]model.Patient{},
		staff:        map[string]model.Staff{},
		users:        map[string]model.User{},
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) ListAppointments(_ context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Appointment, 0)
	for _, a := range m.appointments {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) CreateAppointment(_ context.Context, appt model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.appointments[appt.ID]; ok {
		return ErrDuplicate
	}
	if appt.Active() {
		slot := appt.Slot()
		for _, existing := range m.appointments {
			if existing.Active() && existing.Slot() == slot {
				return ErrDuplicate
			}
		}
	}
	m.appointments[appt.ID] = appt
	return nil
}

func (m *Memory) SetAppointmentStatus(_ context.Context, id string, status model.AppointmentStatus) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if a.Status == model.StatusCancelled && status != model.StatusCancelled {
		slot := a.Slot()
		for otherID, existing := range m.appointments {
			if otherID != id && existing.Active() && existing.Slot() == slot {
				return model.Appointment{}, ErrDuplicate
			}
		}
	}
	a.Status = status
	m.appointments[id] = a
	return a, nil
}

func (m *Memory) DeleteAppointment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[id]; !ok {
		return ErrNotFound
	}
	delete(m.appointments, id)
	return nil
}

func (m *Memory) ListPatients(_ context.Context, f PatientFilter) ([]model.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		if f.CPF != "" && p.CPF != f.CPF {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetPatient(_ context.Context, id string) (model.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return model.Patient{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) CreatePatient(_ context.Context, p model.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.patients {
		if existing.CPF == p.CPF {
			return ErrDuplicate
		}
	}
	m.patients[p.ID] = p
	return nil
}

func (m *Memory) UpdatePatient(_ context.Context, p model.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *Memory) DeletePatient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *Memory) ListStaff(_ context.Context, f StaffFilter) ([]model.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Staff, 0, len(m.staff))
	for _, s := range m.staff {
		if f.CPF != "" && s.CPF != f.CPF {
			continue
		}
		if f.Role != "" && s.Role != f.Role {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetStaff(_ context.Context, id string) (model.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[id]
	if !ok {
		return model.Staff{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) CreateStaff(_ context.Context, s model.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[s.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.staff {
		if existing.CPF == s.CPF {
			return ErrDuplicate
		}
	}
	m.staff[s.ID] = s
	return nil
}

func (m *Memory) UpdateStaff(_ context.Context, s model.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[s.ID]; !ok {
		return ErrNotFound
	}
	m.staff[s.ID] = s
	return nil
}

func (m *Memory) DeleteStaff(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[id]; !ok {
		return ErrNotFound
	}
	delete(m.staff, id)
	return nil
}

func (m *Memory) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) CreateUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := m.users[key]; ok {
		return ErrDuplicate
	}
	m.users[key] = u
	return nil
}

var _ Backend = (*Memory)(nil)
