package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/flightbase/logbook/internal/migrate"
	"github.com/flightbase/logbook/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	m := migrate.NewManager(db, migrate.Steps, 24*time.Hour)
	if err := m.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func seedEntry(t *testing.T, s *Store, date string, registration string) *types.FlightEntry {
	t.Helper()
	flightDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	entry, err := s.CreateEntry(context.Background(), &types.FlightEntry{
		FlightDate:    flightDate,
		Registration:  registration,
		DepartureICAO: "KJFK",
		ArrivalICAO:   "KBOS",
		TotalTime:     95,
		PICTime:       95,
		DayLandings:   1,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return entry
}
