// Package directory owns appointment scheduling for the clinic and the
// patient/staff registry that feeds it.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/mask"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultUpcomingLimit = 3
	defaultConcurrency   = 8
)

// Store is what the directory needs from a storage backend.
type Store interface {
	storage.AppointmentStore
	storage.PatientStore
	storage.StaffStore
}

type Config struct {
	// Location is the clinic's wall clock. "Today" and "now" for the
	// upcoming list are both taken in this zone.
	Location      *time.Location
	Now           func() time.Time
	UpcomingLimit int
	// Concurrency bounds parallel patient/staff fetches while enriching.
	Concurrency int
}

type Directory struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	mu       sync.RWMutex
	snapshot Snapshot
	hasSnap  bool
}

func New(store Store, logger *slog.Logger, cfg Config) *Directory {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = DefaultUpcomingLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:  store,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("clinic-service/directory"),
	}
}

// Draft is an appointment request. Date accepts YYYY-MM-DD, DD/MM/YYYY or
// DDMMYYYY; Time accepts HH:MM or HHMM.
type Draft struct {
	PatientID string
	StaffID   string
	Date      string
	Time      string
	Type      model.AppointmentType
	Notes     string
}

func (d Draft) normalized() Draft {
	d.PatientID = strings.TrimSpace(d.PatientID)
	d.StaffID = strings.TrimSpace(d.StaffID)
	d.Date = mask.NormalizeDate(d.Date)
	d.Time = mask.NormalizeTime(d.Time)
	d.Type = model.AppointmentType(strings.TrimSpace(string(d.Type)))
	d.Notes = strings.TrimSpace(d.Notes)
	return d
}

func (d Draft) validate() error {
	if err := requireText("patient_id", d.PatientID); err != nil {
		return err
	}
	if err := requireText("staff_id", d.StaffID); err != nil {
		return err
	}
	if err := validateISODate("date", d.Date); err != nil {
		return err
	}
	if d.Time == "" {
		return invalid("time", "is required")
	}
	if !mask.ValidClock(d.Time) {
		return invalid("time", "must be a valid time (HH:MM)")
	}
	if d.Type == "" {
		return invalid("type", "is required")
	}
	if !d.Type.Valid() {
		return invalid("type", "must be one of consultation, follow-up, exam, urgent")
	}
	return nil
}

// Entry is an appointment with its patient and staff member attached when
// they could be found.
type Entry struct {
	model.Appointment
	Patient *model.Patient
	Staff   *model.Staff
}

// Create books a slot. The slot is checked for an active appointment first;
// a store that enforces the slot rule itself closes the window between the
// check and the insert.
func (d *Directory) Create(ctx context.Context, draft Draft) (model.Appointment, error) {
	ctx, span := d.tracer.Start(ctx, "directory.Create")
	defer span.End()

	draft = draft.normalized()
	if err := draft.validate(); err != nil {
		return model.Appointment{}, err
	}
	span.SetAttributes(
		attribute.String("clinic.staff_id", draft.StaffID),
		attribute.String("clinic.date", draft.Date),
		attribute.String("clinic.time", draft.Time),
	)

	taken, err := d.store.ListAppointments(ctx, storage.AppointmentFilter{
		StaffID:    draft.StaffID,
		Date:       draft.Date,
		Time:       draft.Time,
		ActiveOnly: true,
	})
	if err != nil {
		return model.Appointment{}, d.fail(span, unavailable(err))
	}
	if len(taken) > 0 {
		return model.Appointment{}, ErrSlotTaken
	}

	appt := model.Appointment{
		ID:        uuid.NewString(),
		PatientID: draft.PatientID,
		StaffID:   draft.StaffID,
		Date:      draft.Date,
		Time:      draft.Time,
		Type:      draft.Type,
		Status:    model.StatusScheduled,
		Notes:     draft.Notes,
		CreatedAt: d.cfg.Now().UTC(),
	}
	if err := d.store.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, d.fail(span, unavailable(err))
	}

	d.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"staff_id", appt.StaffID,
		"date", appt.Date,
		"time", appt.Time,
	)
	return appt, nil
}

func (d *Directory) Get(ctx context.Context, id string) (Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{}, invalid("id", "is required")
	}
	appt, err := d.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, unavailable(err)
	}
	entries, err := d.enrich(ctx, []model.Appointment{appt})
	if err != nil {
		return Entry{Appointment: appt}, nil
	}
	return entries[0], nil
}

// List returns every appointment ordered by date and time.
func (d *Directory) List(ctx context.Context, enrich bool) ([]Entry, error) {
	ctx, span := d.tracer.Start(ctx, "directory.List")
	defer span.End()

	appts, err := d.store.ListAppointments(ctx, storage.AppointmentFilter{})
	if err != nil {
		return []Entry{}, d.fail(span, unavailable(err))
	}
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
	return d.finish(ctx, span, appts, enrich)
}

// ListByDate returns the day's appointments in every status, ordered by
// time. On failure it returns an empty slice together with the error.
func (d *Directory) ListByDate(ctx context.Context, date string, enrich bool) ([]Entry, error) {
	ctx, span := d.tracer.Start(ctx, "directory.ListByDate")
	defer span.End()

	date = mask.NormalizeDate(date)
	if err := validateISODate("date", date); err != nil {
		return []Entry{}, err
	}
	span.SetAttributes(attribute.String("clinic.date", date))

	appts, err := d.store.ListAppointments(ctx, storage.AppointmentFilter{Date: date})
	if err != nil {
		return []Entry{}, d.fail(span, unavailable(err))
	}
	sortByTime(appts)
	return d.finish(ctx, span, appts, enrich)
}

// ListUpcoming returns today's scheduled appointments from the current
// minute on, at most limit of them (DefaultUpcomingLimit when limit <= 0).
// Later days are never included.
func (d *Directory) ListUpcoming(ctx context.Context, limit int) ([]Entry, error) {
	ctx, span := d.tracer.Start(ctx, "directory.ListUpcoming")
	defer span.End()

	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	now := d.cfg.Now().In(d.cfg.Location)
	today := now.Format("2006-01-02")
	clock := now.Format("15:04")

	appts, err := d.store.ListAppointments(ctx, storage.AppointmentFilter{
		Date:   today,
		Status: model.StatusScheduled,
	})
	if err != nil {
		return []Entry{}, d.fail(span, unavailable(err))
	}

	upcoming := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status == model.StatusScheduled && a.Time >= clock {
			upcoming = append(upcoming, a)
		}
	}
	sortByTime(upcoming)
	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return d.finish(ctx, span, upcoming, true)
}

// Cancel marks the appointment cancelled. Cancelling twice succeeds.
func (d *Directory) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	ctx, span := d.tracer.Start(ctx, "directory.Cancel")
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return model.Appointment{}, invalid("id", "is required")
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", id))

	appt, err := d.store.SetAppointmentStatus(ctx, id, model.StatusCancelled)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, d.fail(span, unavailable(err))
	}
	d.logger.Info("appointment cancelled", "appointment_id", id)
	return appt, nil
}

func (d *Directory) Remove(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("id", "is required")
	}
	if err := d.store.DeleteAppointment(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return unavailable(err)
	}
	d.logger.Info("appointment removed", "appointment_id", id)
	return nil
}

// Today is the current date in the clinic's zone.
func (d *Directory) Today() string {
	return d.cfg.Now().In(d.cfg.Location).Format("2006-01-02")
}

func (d *Directory) finish(ctx context.Context, span trace.Span, appts []model.Appointment, enrich bool) ([]Entry, error) {
	if !enrich {
		entries := make([]Entry, len(appts))
		for i, a := range appts {
			entries[i] = Entry{Appointment: a}
		}
		return entries, nil
	}
	entries, err := d.enrich(ctx, appts)
	if err != nil {
		return []Entry{}, d.fail(span, unavailable(err))
	}
	span.SetAttributes(attribute.Int("clinic.results", len(entries)))
	return entries, nil
}

// enrich fetches each distinct patient and staff member once, in parallel.
// Records that no longer exist are left nil.
func (d *Directory) enrich(ctx context.Context, appts []model.Appointment) ([]Entry, error) {
	patientIDs := distinct(appts, func(a model.Appointment) string { return a.PatientID })
	staffIDs := distinct(appts, func(a model.Appointment) string { return a.StaffID })
	foundPatients := make([]*model.Patient, len(patientIDs))
	foundStaff := make([]*model.Staff, len(staffIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, id := range patientIDs {
		g.Go(func() error {
			p, err := d.store.GetPatient(gctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			foundPatients[i] = &p
			return nil
		})
	}
	for i, id := range staffIDs {
		g.Go(func() error {
			s, err := d.store.GetStaff(gctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			foundStaff[i] = &s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	patients := make(map[string]*model.Patient, len(patientIDs))
	for i, id := range patientIDs {
		patients[id] = foundPatients[i]
	}
	staff := make(map[string]*model.Staff, len(staffIDs))
	for i, id := range staffIDs {
		staff[id] = foundStaff[i]
	}
	entries := make([]Entry, len(appts))
	for i, a := range appts {
		entries[i] = Entry{Appointment: a, Patient: patients[a.PatientID], Staff: staff[a.StaffID]}
	}
	return entries, nil
}

// distinct returns the unique keys of appts in first-seen order.
func distinct(appts []model.Appointment, key func(model.Appointment) string) []string {
	seen := make(map[string]struct{}, len(appts))
	ids := make([]string, 0, len(appts))
	for _, a := range appts {
		k := key(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ids = append(ids, k)
	}
	return ids
}

func (d *Directory) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.logger.Warn("directory backend call failed", "err", err)
	return err
}

func sortByTime(appts []model.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool { return appts[i].Time < appts[j].Time })
}
