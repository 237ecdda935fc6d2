package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/config"
	"github.com/clinicdesk/clinicdesk/libs/db"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/jsonstore"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/outbox"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
)

type backend struct {
	kind  string
	store storage.Backend
	// pool is set for the postgres backend only.
	pool *db.Pool
}

func (b backend) close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// openBackend picks the store named by STORE_BACKEND.
func openBackend(ctx context.Context, logger *slog.Logger) (backend, error) {
	kind := config.String("STORE_BACKEND", "memory")
	switch kind {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return backend{kind: kind, store: storage.NewMemory()}, nil

	case "jsonstore":
		timeout, err := config.Duration("JSONSTORE_TIMEOUT", 5*time.Second)
		if err != nil {
			return backend{}, err
		}
		url := config.String("JSONSTORE_URL", "http://localhost:3000")
		logger.Info("using json store", "url", url)
		return backend{kind: kind, store: jsonstore.New(url, timeout)}, nil

	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return backend{}, err
		}
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			return backend{}, err
		}
		if config.Bool("RUN_MIGRATIONS", true) {
			applied, err := db.Migrate(ctx, pool, storage.Migrations())
			if err != nil {
				pool.Close()
				return backend{}, fmt.Errorf("migrate: %w", err)
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", "files", applied)
			}
		}
		return backend{
			kind:  kind,
			store: storage.NewPostgres(pool, outbox.NewRepository(pool)),
			pool:  pool,
		}, nil
	}
	return backend{}, fmt.Errorf("unknown STORE_BACKEND %q (want memory, jsonstore or postgres)", kind)
}
