// Package inbox remembers which events were already handled so redelivered
// Kafka messages are applied once.
package inbox

import (
	"context"
	"errors"
	"sync"

	"github.com/clinicdesk/clinicdesk/libs/db"
	"github.com/jackc/pgx/v5/pgconn"
)

// Recorder reports true the first time an event id is seen.
type Recorder interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Memory is the inbox for deployments without Postgres. It keeps at most
// limit ids and forgets the oldest first.
type Memory struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	limit int
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 10000
	}
	return &Memory{seen: map[string]struct{}{}, limit: limit}
}

func (m *Memory) Record(_ context.Context, eventID string, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = struct{}{}
	m.order = append(m.order, eventID)
	if len(m.order) > m.limit {
		delete(m.seen, m.order[0])
		m.order = m.order[1:]
	}
	return true, nil
}
