package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/db"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres stores clinic records in PostgreSQL. The partial unique index
// appointments_slot_active_uniq makes slot booking atomic, and appointment
// changes are recorded in the outbox inside the same transaction.
type Postgres struct {
	pool   *db.Pool
	outbox *outbox.Repository
	now    func() time.Time
}

func NewPostgres(pool *db.Pool, outboxRepo *outbox.Repository) *Postgres {
	return &Postgres{pool: pool, outbox: outboxRepo, now: time.Now}
}

func (r *Postgres) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const appointmentColumns = `id, patient_id, staff_id, to_char(appt_date, 'YYYY-MM-DD'), appt_time, type, status, notes, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var typ, status string
	if err := row.Scan(&a.ID, &a.PatientID, &a.StaffID, &a.Date, &a.Time, &typ, &status, &a.Notes, &a.CreatedAt); err != nil {
		return model.Appointment{}, err
	}
	a.Type = model.AppointmentType(typ)
	a.Status = model.AppointmentStatus(status)
	return a, nil
}

func (r *Postgres) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.StaffID != "" {
		add("staff_id = $%d", f.StaffID)
	}
	if f.Date != "" {
		d, err := parseISODate(f.Date)
		if err != nil {
			return nil, err
		}
		add("appt_date = $%d", d)
	}
	if f.Time != "" {
		add("appt_time = $%d", f.Time)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ActiveOnly {
		where = append(where, "status <> 'cancelled'")
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appt_date ASC, appt_time ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := make([]model.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	return a, translate(err)
}

func (r *Postgres) CreateAppointment(ctx context.Context, appt model.Appointment) error {
	date, err := parseISODate(appt.Date)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, staff_id, appt_date, appt_time, type, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, appt.ID, appt.PatientID, appt.StaffID, date, appt.Time, string(appt.Type), string(appt.Status), appt.Notes, appt.CreatedAt)
	if err != nil {
		return translate(err)
	}

	evt, err := outbox.NewAppointmentEvent(outbox.TopicAppointmentBooked, appt, r.now())
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}
	return tx.Commit(ctx)
}

// SetAppointmentStatus is a no-op (and emits nothing) when the appointment
// already has status.
func (r *Postgres) SetAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments SET status = $2
		WHERE id = $1 AND status <> $2
		RETURNING `+appointmentColumns, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
		return existing, translate(getErr)
	}
	if err != nil {
		return model.Appointment{}, translate(err)
	}

	evt, err := outbox.NewAppointmentEvent(outbox.StatusEventType(status), a, r.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, fmt.Errorf("write outbox event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (r *Postgres) DeleteAppointment(ctx context.Context, id string) error {
	return r.deleteByID(ctx, `DELETE FROM appointments WHERE id = $1`, id)
}

const patientColumns = `id, name, cpf, to_char(birth_date, 'YYYY-MM-DD'), phone, email, address, created_at`

func scanPatient(row pgx.Row) (model.Patient, error) {
	var p model.Patient
	err := row.Scan(&p.ID, &p.Name, &p.CPF, &p.BirthDate, &p.Phone, &p.Email, &p.Address, &p.CreatedAt)
	return p, err
}

func (r *Postgres) ListPatients(ctx context.Context, f PatientFilter) ([]model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients`
	var args []any
	if f.CPF != "" {
		query += ` WHERE cpf = $1`
		args = append(args, f.CPF)
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patients := make([]model.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return patients, nil
}

func (r *Postgres) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	return p, translate(err)
}

func (r *Postgres) CreatePatient(ctx context.Context, p model.Patient) error {
	birth, err := parseISODate(p.BirthDate)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, cpf, birth_date, phone, email, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Name, p.CPF, birth, p.Phone, p.Email, p.Address, p.CreatedAt)
	return translate(err)
}

func (r *Postgres) UpdatePatient(ctx context.Context, p model.Patient) error {
	birth, err := parseISODate(p.BirthDate)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET name = $2, birth_date = $3, phone = $4, email = $5, address = $6
		WHERE id = $1
	`, p.ID, p.Name, birth, p.Phone, p.Email, p.Address)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) DeletePatient(ctx context.Context, id string) error {
	return r.deleteByID(ctx, `DELETE FROM patients WHERE id = $1`, id)
}

const staffColumns = `id, name, cpf, role, specialty, license_number, phone, email, created_at`

func scanStaff(row pgx.Row) (model.Staff, error) {
	var s model.Staff
	var role string
	if err := row.Scan(&s.ID, &s.Name, &s.CPF, &role, &s.Specialty, &s.LicenseNumber, &s.Phone, &s.Email, &s.CreatedAt); err != nil {
		return model.Staff{}, err
	}
	s.Role = model.StaffRole(role)
	return s, nil
}

func (r *Postgres) ListStaff(ctx context.Context, f StaffFilter) ([]model.Staff, error) {
	var where []string
	var args []any
	if f.CPF != "" {
		args = append(args, f.CPF)
		where = append(where, fmt.Sprintf("cpf = $%d", len(args)))
	}
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	query := `SELECT ` + staffColumns + ` FROM staff`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]model.Staff, 0)
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return staff, nil
}

func (r *Postgres) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	s, err := scanStaff(r.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
	return s, translate(err)
}

func (r *Postgres) CreateStaff(ctx context.Context, s model.Staff) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff (id, name, cpf, role, specialty, license_number, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.Name, s.CPF, string(s.Role), s.Specialty, s.LicenseNumber, s.Phone, s.Email, s.CreatedAt)
	return translate(err)
}

func (r *Postgres) UpdateStaff(ctx context.Context, s model.Staff) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE staff
		SET name = $2, role = $3, specialty = $4, license_number = $5, phone = $6, email = $7
		WHERE id = $1
	`, s.ID, s.Name, string(s.Role), s.Specialty, s.LicenseNumber, s.Phone, s.Email)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) DeleteStaff(ctx context.Context, id string) error {
	return r.deleteByID(ctx, `DELETE FROM staff WHERE id = $1`, id)
}

func (r *Postgres) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, translate(err)
}

func (r *Postgres) CreateUser(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt)
	return translate(err)
}

func (r *Postgres) deleteByID(ctx context.Context, query, id string) error {
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsConflict reports unique (23505) and exclusion (23P01) violations.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return ErrNotFound
	case IsConflict(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

func parseISODate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

var _ Backend = (*Postgres)(nil)
