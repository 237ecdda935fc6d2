package directory

import (
	"context"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
)

// Snapshot is the dashboard view of the clinic day.
type Snapshot struct {
	Date        string
	Agenda      []Entry
	Upcoming    []Entry
	Counts      map[model.AppointmentStatus]int
	RefreshedAt time.Time
}

// Refresh recomputes today's agenda and upcoming list and stores them as the
// current snapshot. The previous snapshot is kept when the backend fails.
func (d *Directory) Refresh(ctx context.Context) (Snapshot, error) {
	ctx, span := d.tracer.Start(ctx, "directory.Refresh")
	defer span.End()

	today := d.Today()
	agenda, err := d.ListByDate(ctx, today, true)
	if err != nil {
		return Snapshot{}, err
	}
	upcoming, err := d.ListUpcoming(ctx, d.cfg.UpcomingLimit)
	if err != nil {
		return Snapshot{}, err
	}

	counts := make(map[model.AppointmentStatus]int, 4)
	for _, e := range agenda {
		counts[e.Status]++
	}
	snap := Snapshot{
		Date:        today,
		Agenda:      agenda,
		Upcoming:    upcoming,
		Counts:      counts,
		RefreshedAt: d.cfg.Now().UTC(),
	}

	d.mu.Lock()
	d.snapshot = snap
	d.hasSnap = true
	d.mu.Unlock()
	return snap, nil
}

// Snapshot returns the last refreshed view; ok is false before the first
// successful Refresh.
func (d *Directory) Snapshot() (Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot, d.hasSnap
}

// RunRefresher refreshes immediately and then on every tick until ctx is
// done. Failures are logged and retried on the next tick.
func (d *Directory) RunRefresher(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	d.refreshLogged(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refreshLogged(ctx)
		}
	}
}

func (d *Directory) refreshLogged(ctx context.Context) {
	if _, err := d.Refresh(ctx); err != nil {
		d.logger.Warn("dashboard refresh failed", "err", err)
		return
	}
	d.logger.Debug("dashboard refreshed")
}
