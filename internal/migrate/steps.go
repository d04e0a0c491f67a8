package migrate

import (
	"context"
	"fmt"

	"github.com/flightbase/logbook/internal/dbx"
)

// Step is one schema migration. Apply runs inside a transaction shared
// with the ledger insert; it must be written create-if-absent /
// add-column-if-absent, because an install arriving from a schema that
// predates the ledger has real data in tables that already exist.
type Step struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, tx dbx.DBTX) error
}

// Steps is the ordered migration list. Versions are contiguous and
// ascending; the last entry is the target version for this build.
var Steps = []Step{
	{
		Version:     1,
		Description: "airports reference table and lookup indexes",
		Apply:       applyAirports,
	},
	{
		Version:     2,
		Description: "flight entries table, sync columns and indexes",
		Apply:       applyFlightEntries,
	},
}

func applyAirports(ctx context.Context, tx dbx.DBTX) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS airports (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			icao_code    TEXT NOT NULL UNIQUE,
			iata_code    TEXT,
			name         TEXT NOT NULL,
			city         TEXT NOT NULL DEFAULT '',
			country      TEXT NOT NULL DEFAULT '',
			latitude     REAL NOT NULL DEFAULT 0,
			longitude    REAL NOT NULL DEFAULT 0,
			timezone     TEXT,
			elevation_ft INTEGER,
			type         TEXT NOT NULL DEFAULT '',
			active       INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_airports_iata ON airports(iata_code)`,
		`CREATE INDEX IF NOT EXISTS idx_airports_name ON airports(name)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// entryColumns is every flight_entries column after local_id, with the
// DDL used both for the fresh-install create and for additive ALTERs on
// pre-existing tables. Defaults here are what pre-existing rows receive.
var entryColumns = []struct {
	name string
	ddl  string
}{
	{"server_id", "server_id INTEGER"},
	{"status", "status TEXT NOT NULL DEFAULT 'draft'"},
	{"sync_status", "sync_status TEXT NOT NULL DEFAULT 'pending'"},
	{"flight_date", "flight_date TEXT NOT NULL DEFAULT ''"},
	{"registration", "registration TEXT NOT NULL DEFAULT ''"},
	{"aircraft_type", "aircraft_type TEXT NOT NULL DEFAULT ''"},
	{"departure_icao", "departure_icao TEXT NOT NULL DEFAULT ''"},
	{"arrival_icao", "arrival_icao TEXT NOT NULL DEFAULT ''"},
	{"total_time", "total_time INTEGER NOT NULL DEFAULT 0"},
	{"pic_time", "pic_time INTEGER NOT NULL DEFAULT 0"},
	{"sic_time", "sic_time INTEGER NOT NULL DEFAULT 0"},
	{"dual_time", "dual_time INTEGER NOT NULL DEFAULT 0"},
	{"night_time", "night_time INTEGER NOT NULL DEFAULT 0"},
	{"instrument_time", "instrument_time INTEGER NOT NULL DEFAULT 0"},
	{"xc_time", "xc_time INTEGER NOT NULL DEFAULT 0"},
	{"day_landings", "day_landings INTEGER NOT NULL DEFAULT 0"},
	{"night_landings", "night_landings INTEGER NOT NULL DEFAULT 0"},
	{"night_time_method", "night_time_method TEXT NOT NULL DEFAULT 'manual'"},
	{"remarks", "remarks TEXT NOT NULL DEFAULT ''"},
	{"attachments", "attachments TEXT"},
	{"additional_data", "additional_data TEXT"},
	{"content_hash", "content_hash TEXT"},
	{"last_synced_at", "last_synced_at TEXT"},
	{"created_at", "created_at TEXT NOT NULL DEFAULT ''"},
	{"updated_at", "updated_at TEXT NOT NULL DEFAULT ''"},
}

func applyFlightEntries(ctx context.Context, tx dbx.DBTX) error {
	exists, err := tableExists(ctx, tx, "flight_entries")
	if err != nil {
		return err
	}

	if !exists {
		// Fresh install: create the table in its final shape.
		create := `CREATE TABLE flight_entries (
			local_id TEXT PRIMARY KEY`
		for _, col := range entryColumns {
			create += ",\n\t\t\t" + col.ddl
		}
		create += "\n\t\t)"
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return err
		}
	} else {
		// Existing install: add each missing column individually,
		// leaving every pre-existing value untouched.
		for _, col := range entryColumns {
			present, err := columnExists(ctx, tx, "flight_entries", col.name)
			if err != nil {
				return err
			}
			if present {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE flight_entries ADD COLUMN %s", col.ddl)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_flight_entries_sync_status ON flight_entries(sync_status)`,
		`CREATE INDEX IF NOT EXISTS idx_flight_entries_flight_date ON flight_entries(flight_date)`,
		`CREATE INDEX IF NOT EXISTS idx_flight_entries_status ON flight_entries(status)`,
	}
	for _, stmt := range indexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
