package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
)

var clinicZone = time.FixedZone("BRT", -3*3600)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDirectory(t *testing.T, store Store, now time.Time) *Directory {
	t.Helper()
	return New(store, discardLogger(), Config{
		Location: clinicZone,
		Now:      func() time.Time { return now },
	})
}

// brokenStore fails every appointment listing and patient lookup.
type brokenStore struct {
	*storage.Memory
	listErr    error
	patientErr error
}

func (b *brokenStore) ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.Memory.ListAppointments(ctx, f)
}

func (b *brokenStore) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	if b.patientErr != nil {
		return model.Patient{}, b.patientErr
	}
	return b.Memory.GetPatient(ctx, id)
}

// racyStore skips the pre-check result so the store's own slot rule is hit.
type racyStore struct {
	*storage.Memory
}

func (racyStore) ListAppointments(context.Context, storage.AppointmentFilter) ([]model.Appointment, error) {
	return []model.Appointment{}, nil
}

func book(t *testing.T, d *Directory, staffID, date, clock string) model.Appointment {
	t.Helper()
	a, err := d.Create(context.Background(), Draft{
		PatientID: "p1",
		StaffID:   staffID,
		Date:      date,
		Time:      clock,
		Type:      model.TypeConsultation,
	})
	if err != nil {
		t.Fatalf("book %s %s %s: %v", staffID, date, clock, err)
	}
	return a
}

func TestCreateBooksScheduledAppointment(t *testing.T) {
	now := time.Date(2024, 12, 20, 8, 0, 0, 0, clinicZone)
	d := newTestDirectory(t, storage.NewMemory(), now)

	a, err := d.Create(context.Background(), Draft{
		PatientID: " p1 ",
		StaffID:   "s1",
		Date:      "25/12/2024",
		Time:      "0930",
		Type:      model.TypeExam,
		Notes:     "fasting",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" {
		t.Fatalf("expected generated id")
	}
	if a.Status != model.StatusScheduled {
		t.Fatalf("expected scheduled, got %q", a.Status)
	}
	if a.Date != "2024-12-25" || a.Time != "09:30" || a.PatientID != "p1" {
		t.Fatalf("unexpected normalized fields: %+v", a)
	}
	if !a.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at from clock, got %v", a.CreatedAt)
	}
}

func TestCreateValidation(t *testing.T) {
	valid := Draft{PatientID: "p1", StaffID: "s1", Date: "2024-12-25", Time: "09:30", Type: model.TypeConsultation}
	cases := []struct {
		name  string
		edit  func(*Draft)
		field string
	}{
		{"missing patient", func(d *Draft) { d.PatientID = "" }, "patient_id"},
		{"missing staff", func(d *Draft) { d.StaffID = " " }, "staff_id"},
		{"missing date", func(d *Draft) { d.Date = "" }, "date"},
		{"impossible date", func(d *Draft) { d.Date = "2024-02-30" }, "date"},
		{"partial date", func(d *Draft) { d.Date = "25/12" }, "date"},
		{"missing time", func(d *Draft) { d.Time = "" }, "time"},
		{"hour out of range", func(d *Draft) { d.Time = "24:00" }, "time"},
		{"minute out of range", func(d *Draft) { d.Time = "09:60" }, "time"},
		{"missing type", func(d *Draft) { d.Type = "" }, "type"},
		{"unknown type", func(d *Draft) { d.Type = "surgery" }, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &brokenStore{Memory: storage.NewMemory(), listErr: errors.New("must not be called")}
			d := newTestDirectory(t, store, time.Now())
			draft := valid
			tc.edit(&draft)

			_, err := d.Create(context.Background(), draft)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestCreateRejectsTakenSlot(t *testing.T) {
	store := storage.NewMemory()
	d := newTestDirectory(t, store, time.Now())

	book(t, d, "s1", "2024-12-25", "09:30")
	_, err := d.Create(context.Background(), Draft{
		PatientID: "p2", StaffID: "s1", Date: "2024-12-25", Time: "09:30", Type: model.TypeFollowUp,
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	all, _ := store.ListAppointments(context.Background(), storage.AppointmentFilter{})
	if len(all) != 1 {
		t.Fatalf("expected nothing created, have %d", len(all))
	}

	// Another staff member at the same time is free.
	book(t, d, "s2", "2024-12-25", "09:30")
}

func TestCreateAllowsRebookingCancelledSlot(t *testing.T) {
	d := newTestDirectory(t, storage.NewMemory(), time.Now())
	ctx := context.Background()

	first := book(t, d, "s1", "2024-12-25", "09:30")
	if _, err := d.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second := book(t, d, "s1", "2024-12-25", "09:30")
	if second.ID == first.ID {
		t.Fatalf("expected a new appointment")
	}
}

func TestCreateMapsStoreDuplicateToSlotTaken(t *testing.T) {
	store := racyStore{Memory: storage.NewMemory()}
	d := newTestDirectory(t, store, time.Now())

	book(t, d, "s1", "2024-12-25", "09:30")
	_, err := d.Create(context.Background(), Draft{
		PatientID: "p2", StaffID: "s1", Date: "2024-12-25", Time: "09:30", Type: model.TypeUrgent,
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestConcurrentBookingsOfOneSlot(t *testing.T) {
	store := racyStore{Memory: storage.NewMemory()}
	d := newTestDirectory(t, store, time.Now())

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  int
		refused int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Create(context.Background(), Draft{
				PatientID: "p1", StaffID: "s1", Date: "2024-12-25", Time: "10:00", Type: model.TypeConsultation,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrSlotTaken):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if booked != 1 || refused != attempts-1 {
		t.Fatalf("expected exactly one booking, got %d booked %d refused", booked, refused)
	}
}

func TestCreateBackendFailure(t *testing.T) {
	store := &brokenStore{Memory: storage.NewMemory(), listErr: errors.New("connection refused")}
	d := newTestDirectory(t, store, time.Now())

	_, err := d.Create(context.Background(), Draft{
		PatientID: "p1", StaffID: "s1", Date: "2024-12-25", Time: "09:30", Type: model.TypeConsultation,
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestListByDateSortsAndEnriches(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	if err := store.CreatePatient(ctx, model.Patient{ID: "p1", Name: "Ana", CPF: "12345678901"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateStaff(ctx, model.Staff{ID: "s1", Name: "Dr. Lima", CPF: "10987654321", Role: model.RolePhysician}); err != nil {
		t.Fatal(err)
	}
	d := newTestDirectory(t, store, time.Now())

	book(t, d, "s1", "2024-12-25", "14:00")
	cancelled := book(t, d, "s1", "2024-12-25", "08:00")
	book(t, d, "ghost", "2024-12-25", "11:15")
	book(t, d, "s1", "2024-12-26", "07:00")
	if _, err := d.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatal(err)
	}

	entries, err := d.ListByDate(ctx, "25/12/2024", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var times []string
	for _, e := range entries {
		times = append(times, e.Time)
	}
	if len(times) != 3 || times[0] != "08:00" || times[1] != "11:15" || times[2] != "14:00" {
		t.Fatalf("unexpected order %v", times)
	}
	if entries[0].Status != model.StatusCancelled {
		t.Fatalf("expected cancelled entries to be listed")
	}
	if entries[0].Patient == nil || entries[0].Patient.Name != "Ana" {
		t.Fatalf("expected patient enrichment, got %+v", entries[0].Patient)
	}
	if entries[0].Staff == nil || entries[0].Staff.Name != "Dr. Lima" {
		t.Fatalf("expected staff enrichment, got %+v", entries[0].Staff)
	}
	if entries[1].Staff != nil {
		t.Fatalf("expected missing staff to stay nil")
	}

	plain, err := d.ListByDate(ctx, "2024-12-25", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(plain) != 3 || plain[0].Patient != nil {
		t.Fatalf("expected unenriched entries")
	}
}

func TestListByDateEmptyDay(t *testing.T) {
	d := newTestDirectory(t, storage.NewMemory(), time.Now())
	entries, err := d.ListByDate(context.Background(), "2024-01-01", true)
	if err != nil {
		t.Fatal(err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", entries)
	}
}

func TestListByDateEnrichesManyDistinctPeople(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	const n = 200
	for i := 0; i < n; i++ {
		pid, sid := fmt.Sprintf("p%03d", i), fmt.Sprintf("s%03d", i)
		if err := store.CreatePatient(ctx, model.Patient{ID: pid, Name: "patient " + pid, CPF: fmt.Sprintf("1%010d", i)}); err != nil {
			t.Fatal(err)
		}
		if err := store.CreateStaff(ctx, model.Staff{ID: sid, Name: "staff " + sid, CPF: fmt.Sprintf("2%010d", i), Role: model.RoleNurse}); err != nil {
			t.Fatal(err)
		}
		appt := model.Appointment{
			ID:        fmt.Sprintf("a%03d", i),
			PatientID: pid,
			StaffID:   sid,
			Date:      "2024-12-25",
			Time:      fmt.Sprintf("%02d:%02d", i%24, i%60),
			Type:      model.TypeConsultation,
			Status:    model.StatusScheduled,
		}
		if err := store.CreateAppointment(ctx, appt); err != nil {
			t.Fatal(err)
		}
	}
	d := newTestDirectory(t, store, time.Now())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				entries, err := d.ListByDate(ctx, "2024-12-25", true)
				if err != nil {
					errs <- err
					return
				}
				if len(entries) != n {
					errs <- fmt.Errorf("got %d entries", len(entries))
					return
				}
				for _, e := range entries {
					if e.Patient == nil || e.Patient.ID != e.PatientID || e.Staff == nil || e.Staff.ID != e.StaffID {
						errs <- fmt.Errorf("bad enrichment for %s: %+v %+v", e.ID, e.Patient, e.Staff)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestListByDateFailsSoftly(t *testing.T) {
	ctx := context.Background()
	cases := map[string]*brokenStore{
		"listing":    {Memory: storage.NewMemory(), listErr: errors.New("timeout")},
		"enrichment": {Memory: storage.NewMemory(), patientErr: errors.New("timeout")},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			_ = store.Memory.CreateAppointment(ctx, model.Appointment{
				ID: "a1", PatientID: "p1", StaffID: "s1", Date: "2024-12-25", Time: "09:00",
				Type: model.TypeConsultation, Status: model.StatusScheduled,
			})
			d := newTestDirectory(t, store, time.Now())

			entries, err := d.ListByDate(ctx, "2024-12-25", true)
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
			if entries == nil || len(entries) != 0 {
				t.Fatalf("expected empty non-nil slice, got %#v", entries)
			}
		})
	}
}

func TestListUpcomingTodayOnly(t *testing.T) {
	ctx := context.Background()
	// 10:00 in the clinic is 13:00 UTC; the clock itself reports UTC.
	now := time.Date(2024, 12, 25, 13, 0, 0, 0, time.UTC)
	d := newTestDirectory(t, storage.NewMemory(), now)

	book(t, d, "s1", "2024-12-25", "09:59")
	book(t, d, "s1", "2024-12-25", "10:00")
	book(t, d, "s1", "2024-12-25", "16:00")
	book(t, d, "s1", "2024-12-25", "11:30")
	gone := book(t, d, "s2", "2024-12-25", "10:30")
	book(t, d, "s1", "2024-12-25", "17:00")
	book(t, d, "s1", "2024-12-26", "08:00")
	if _, err := d.Cancel(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}

	entries, err := d.ListUpcoming(ctx, 0)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	var times []string
	for _, e := range entries {
		if e.Date != "2024-12-25" {
			t.Fatalf("expected today only, got %s", e.Date)
		}
		times = append(times, e.Time)
	}
	want := []string{"10:00", "11:30", "16:00"}
	if len(times) != len(want) {
		t.Fatalf("expected %v, got %v", want, times)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, times)
		}
	}

	more, err := d.ListUpcoming(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(more) != 4 {
		t.Fatalf("expected 4 with a larger limit, got %d", len(more))
	}
}

func TestListUpcomingEmptyLateInTheDay(t *testing.T) {
	now := time.Date(2024, 12, 25, 23, 59, 0, 0, clinicZone)
	d := newTestDirectory(t, storage.NewMemory(), now)
	book(t, d, "s1", "2024-12-26", "00:00")

	entries, err := d.ListUpcoming(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected nothing upcoming, got %d", len(entries))
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t, storage.NewMemory(), time.Now())
	a := book(t, d, "s1", "2024-12-25", "09:30")

	for i := 0; i < 2; i++ {
		got, err := d.Cancel(ctx, a.ID)
		if err != nil {
			t.Fatalf("cancel #%d: %v", i+1, err)
		}
		if got.Status != model.StatusCancelled {
			t.Fatalf("expected cancelled, got %q", got.Status)
		}
	}
	if _, err := d.Cancel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAndRemove(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t, storage.NewMemory(), time.Now())
	a := book(t, d, "s1", "2024-12-25", "09:30")

	got, err := d.Get(ctx, a.ID)
	if err != nil || got.ID != a.ID {
		t.Fatalf("get: %+v %v", got, err)
	}
	if err := d.Remove(ctx, a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := d.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	if err := d.Remove(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestListSortsByDateThenTime(t *testing.T) {
	d := newTestDirectory(t, storage.NewMemory(), time.Now())
	book(t, d, "s1", "2024-12-26", "08:00")
	book(t, d, "s1", "2024-12-25", "15:00")
	book(t, d, "s1", "2024-12-25", "09:00")

	entries, err := d.List(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{}
	for _, e := range entries {
		got = append(got, e.Date+" "+e.Time)
	}
	want := []string{"2024-12-25 09:00", "2024-12-25 15:00", "2024-12-26 08:00"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRefreshStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 12, 25, 9, 0, 0, 0, clinicZone)
	d := newTestDirectory(t, storage.NewMemory(), now)

	if _, ok := d.Snapshot(); ok {
		t.Fatalf("expected no snapshot before refresh")
	}
	book(t, d, "s1", "2024-12-25", "10:00")
	c := book(t, d, "s1", "2024-12-25", "11:00")
	if _, err := d.Cancel(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	snap, err := d.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.Date != "2024-12-25" || len(snap.Agenda) != 2 || len(snap.Upcoming) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Counts[model.StatusScheduled] != 1 || snap.Counts[model.StatusCancelled] != 1 {
		t.Fatalf("unexpected counts %v", snap.Counts)
	}
	cached, ok := d.Snapshot()
	if !ok || cached.RefreshedAt != snap.RefreshedAt || len(cached.Agenda) != 2 {
		t.Fatalf("expected cached snapshot, got %+v", cached)
	}
}

func TestRefreshKeepsPreviousSnapshotOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{Memory: storage.NewMemory()}
	d := newTestDirectory(t, store, time.Date(2024, 12, 25, 9, 0, 0, 0, clinicZone))
	if _, err := d.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	store.listErr = errors.New("down")
	if _, err := d.Refresh(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, ok := d.Snapshot(); !ok {
		t.Fatalf("expected previous snapshot to survive")
	}
}

func TestRunRefresherStopsWithContext(t *testing.T) {
	d := newTestDirectory(t, storage.NewMemory(), time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.RunRefresher(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := d.Snapshot(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("refresher never produced a snapshot")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("refresher did not stop")
	}
}
