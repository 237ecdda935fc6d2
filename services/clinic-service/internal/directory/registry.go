package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/mask"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
	"github.com/google/uuid"
)

// RegistryStore is the patient and staff half of a storage backend.
type RegistryStore interface {
	storage.PatientStore
	storage.StaffStore
}

// Registry registers patients and staff members. CPF is the identity of
// both and never changes after creation.
type Registry struct {
	store  RegistryStore
	logger *slog.Logger
	now    func() time.Time
}

func NewRegistry(store RegistryStore, logger *slog.Logger, now func() time.Time) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, logger: logger, now: now}
}

type PatientInput struct {
	Name      string
	CPF       string
	BirthDate string
	Phone     string
	Email     string
	Address   string
}

// PatientPatch changes only the non-nil fields.
type PatientPatch struct {
	Name      *string
	BirthDate *string
	Phone     *string
	Email     *string
	Address   *string
}

type StaffInput struct {
	Name          string
	CPF           string
	Role          model.StaffRole
	Specialty     string
	LicenseNumber string
	Phone         string
	Email         string
}

type StaffPatch struct {
	Name          *string
	Role          *model.StaffRole
	Specialty     *string
	LicenseNumber *string
	Phone         *string
	Email         *string
}

func validatePatient(p model.Patient) error {
	if err := requireText("name", p.Name); err != nil {
		return err
	}
	if err := validateCPF(p.CPF); err != nil {
		return err
	}
	if err := validateISODate("birth_date", p.BirthDate); err != nil {
		return err
	}
	if err := validatePhone(p.Phone); err != nil {
		return err
	}
	return validateEmail(p.Email)
}

func validateStaff(s model.Staff) error {
	if err := requireText("name", s.Name); err != nil {
		return err
	}
	if err := validateCPF(s.CPF); err != nil {
		return err
	}
	if err := validateRole(s.Role, s.LicenseNumber); err != nil {
		return err
	}
	if err := validatePhone(s.Phone); err != nil {
		return err
	}
	return validateEmail(s.Email)
}

func (r *Registry) CreatePatient(ctx context.Context, in PatientInput) (model.Patient, error) {
	p := model.Patient{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		CPF:       mask.Digits(in.CPF),
		BirthDate: mask.NormalizeDate(in.BirthDate),
		Phone:     mask.Digits(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		Address:   strings.TrimSpace(in.Address),
		CreatedAt: r.now().UTC(),
	}
	if err := validatePatient(p); err != nil {
		return model.Patient{}, err
	}

	existing, err := r.store.ListPatients(ctx, storage.PatientFilter{CPF: p.CPF})
	if err != nil {
		return model.Patient{}, unavailable(err)
	}
	if len(existing) > 0 {
		return model.Patient{}, ErrCPFTaken
	}
	if err := r.store.CreatePatient(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return model.Patient{}, ErrCPFTaken
		}
		return model.Patient{}, unavailable(err)
	}
	r.logger.Info("patient registered", "patient_id", p.ID)
	return p, nil
}

func (r *Registry) ListPatients(ctx context.Context) ([]model.Patient, error) {
	out, err := r.store.ListPatients(ctx, storage.PatientFilter{})
	if err != nil {
		return []model.Patient{}, unavailable(err)
	}
	return out, nil
}

func (r *Registry) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	p, err := r.store.GetPatient(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.Patient{}, notFoundOr(err)
	}
	return p, nil
}

func (r *Registry) UpdatePatient(ctx context.Context, id string, patch PatientPatch) (model.Patient, error) {
	p, err := r.GetPatient(ctx, id)
	if err != nil {
		return model.Patient{}, err
	}
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.BirthDate != nil {
		p.BirthDate = mask.NormalizeDate(*patch.BirthDate)
	}
	if patch.Phone != nil {
		p.Phone = mask.Digits(*patch.Phone)
	}
	if patch.Email != nil {
		p.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Address != nil {
		p.Address = strings.TrimSpace(*patch.Address)
	}
	if err := validatePatient(p); err != nil {
		return model.Patient{}, err
	}
	if err := r.store.UpdatePatient(ctx, p); err != nil {
		return model.Patient{}, notFoundOr(err)
	}
	return p, nil
}

func (r *Registry) RemovePatient(ctx context.Context, id string) error {
	if err := r.store.DeletePatient(ctx, strings.TrimSpace(id)); err != nil {
		return notFoundOr(err)
	}
	r.logger.Info("patient removed", "patient_id", id)
	return nil
}

func (r *Registry) CreateStaff(ctx context.Context, in StaffInput) (model.Staff, error) {
	s := model.Staff{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		CPF:           mask.Digits(in.CPF),
		Role:          model.StaffRole(strings.TrimSpace(string(in.Role))),
		Specialty:     strings.TrimSpace(in.Specialty),
		LicenseNumber: strings.TrimSpace(in.LicenseNumber),
		Phone:         mask.Digits(in.Phone),
		Email:         strings.TrimSpace(in.Email),
		CreatedAt:     r.now().UTC(),
	}
	if err := validateStaff(s); err != nil {
		return model.Staff{}, err
	}

	existing, err := r.store.ListStaff(ctx, storage.StaffFilter{CPF: s.CPF})
	if err != nil {
		return model.Staff{}, unavailable(err)
	}
	if len(existing) > 0 {
		return model.Staff{}, ErrCPFTaken
	}
	if err := r.store.CreateStaff(ctx, s); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return model.Staff{}, ErrCPFTaken
		}
		return model.Staff{}, unavailable(err)
	}
	r.logger.Info("staff registered", "staff_id", s.ID, "role", s.Role)
	return s, nil
}

// ListStaff lists every staff member, or only those with role when it is set.
func (r *Registry) ListStaff(ctx context.Context, role model.StaffRole) ([]model.Staff, error) {
	if role != "" && !role.Valid() {
		return []model.Staff{}, invalid("role", "must be one of physician, nurse, receptionist, other")
	}
	out, err := r.store.ListStaff(ctx, storage.StaffFilter{Role: role})
	if err != nil {
		return []model.Staff{}, unavailable(err)
	}
	return out, nil
}

func (r *Registry) ListPhysicians(ctx context.Context) ([]model.Staff, error) {
	return r.ListStaff(ctx, model.RolePhysician)
}

func (r *Registry) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	s, err := r.store.GetStaff(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.Staff{}, notFoundOr(err)
	}
	return s, nil
}

func (r *Registry) UpdateStaff(ctx context.Context, id string, patch StaffPatch) (model.Staff, error) {
	s, err := r.GetStaff(ctx, id)
	if err != nil {
		return model.Staff{}, err
	}
	if patch.Name != nil {
		s.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Role != nil {
		s.Role = model.StaffRole(strings.TrimSpace(string(*patch.Role)))
	}
	if patch.Specialty != nil {
		s.Specialty = strings.TrimSpace(*patch.Specialty)
	}
	if patch.LicenseNumber != nil {
		s.LicenseNumber = strings.TrimSpace(*patch.LicenseNumber)
	}
	if patch.Phone != nil {
		s.Phone = mask.Digits(*patch.Phone)
	}
	if patch.Email != nil {
		s.Email = strings.TrimSpace(*patch.Email)
	}
	if err := validateStaff(s); err != nil {
		return model.Staff{}, err
	}
	if err := r.store.UpdateStaff(ctx, s); err != nil {
		return model.Staff{}, notFoundOr(err)
	}
	return s, nil
}

func (r *Registry) RemoveStaff(ctx context.Context, id string) error {
	if err := r.store.DeleteStaff(ctx, strings.TrimSpace(id)); err != nil {
		return notFoundOr(err)
	}
	r.logger.Info("staff removed", "staff_id", id)
	return nil
}

func notFoundOr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return unavailable(err)
}
