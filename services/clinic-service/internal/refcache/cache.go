// Package refcache puts a Redis read-through cache in front of the patient
// and staff lookups used to enrich appointment listings.
package refcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "clinic:ref:"

// Backend wraps a storage.Backend. Reads of single patients and staff go
// through Redis; writes go to the backend and then drop the cached entry.
// Redis failures are logged and fall through to the backend.
type Backend struct {
	storage.Backend
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func New(next storage.Backend, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Backend {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Backend{Backend: next, rdb: rdb, ttl: ttl, logger: logger}
}

func patientKey(id string) string { return keyPrefix + "patient:" + id }
func staffKey(id string) string   { return keyPrefix + "staff:" + id }

type patientEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CPF       string    `json:"cpf"`
	BirthDate string    `json:"birth_date"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type staffEntry struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CPF           string    `json:"cpf"`
	Role          string    `json:"role"`
	Specialty     string    `json:"specialty"`
	LicenseNumber string    `json:"license_number"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	CreatedAt     time.Time `json:"created_at"`
}

func (b *Backend) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	var e patientEntry
	if b.load(ctx, patientKey(id), &e) {
		return model.Patient(e), nil
	}
	p, err := b.Backend.GetPatient(ctx, id)
	if err != nil {
		return p, err
	}
	b.store(ctx, patientKey(id), patientEntry(p))
	return p, nil
}

func (b *Backend) UpdatePatient(ctx context.Context, p model.Patient) error {
	err := b.Backend.UpdatePatient(ctx, p)
	b.forget(ctx, patientKey(p.ID))
	return err
}

func (b *Backend) DeletePatient(ctx context.Context, id string) error {
	err := b.Backend.DeletePatient(ctx, id)
	b.forget(ctx, patientKey(id))
	return err
}

func (b *Backend) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	var e staffEntry
	if b.load(ctx, staffKey(id), &e) {
		return model.Staff{
			ID:            e.ID,
			Name:          e.Name,
			CPF:           e.CPF,
			Role:          model.StaffRole(e.Role),
			Specialty:     e.Specialty,
			LicenseNumber: e.LicenseNumber,
			Phone:         e.Phone,
			Email:         e.Email,
			CreatedAt:     e.CreatedAt,
		}, nil
	}
	s, err := b.Backend.GetStaff(ctx, id)
	if err != nil {
		return s, err
	}
	b.store(ctx, staffKey(id), staffEntry{
		ID:            s.ID,
		Name:          s.Name,
		CPF:           s.CPF,
		Role:          string(s.Role),
		Specialty:     s.Specialty,
		LicenseNumber: s.LicenseNumber,
		Phone:         s.Phone,
		Email:         s.Email,
		CreatedAt:     s.CreatedAt,
	})
	return s, nil
}

func (b *Backend) UpdateStaff(ctx context.Context, s model.Staff) error {
	err := b.Backend.UpdateStaff(ctx, s)
	b.forget(ctx, staffKey(s.ID))
	return err
}

func (b *Backend) DeleteStaff(ctx context.Context, id string) error {
	err := b.Backend.DeleteStaff(ctx, id)
	b.forget(ctx, staffKey(id))
	return err
}

func (b *Backend) load(ctx context.Context, key string, dst any) bool {
	raw, err := b.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.warn("refcache get failed", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		b.warn("refcache entry corrupt", key, err)
		return false
	}
	return true
}

func (b *Backend) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := b.rdb.Set(ctx, key, raw, b.ttl).Err(); err != nil {
		b.warn("refcache set failed", key, err)
	}
}

func (b *Backend) forget(ctx context.Context, key string) {
	if err := b.rdb.Del(ctx, key).Err(); err != nil {
		b.warn("refcache delete failed", key, err)
	}
}

func (b *Backend) warn(msg, key string, err error) {
	if b.logger != nil {
		b.logger.Warn(msg, "key", key, "err", err)
	}
}

var _ storage.Backend = (*Backend)(nil)
