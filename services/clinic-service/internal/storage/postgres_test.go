package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrDuplicate},
		{"exclusion violation", &pgconn.PgError{Code: "23P01"}, ErrDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := translate(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("translate(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	other := &pgconn.PgError{Code: "42P01"}
	if got := translate(other); got != other {
		t.Fatalf("unrelated errors should pass through, got %v", got)
	}
	if translate(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"001_init.sql", "002_events.sql"} {
		if _, err := Migrations().Open(name); err != nil {
			t.Fatalf("missing migration %s: %v", name, err)
		}
	}
}
