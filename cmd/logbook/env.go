package main

import (
	"context"
	"encoding/json"
	"io"
	"text/tabwriter"
	"time"

	"github.com/flightbase/logbook/internal/config"
	"github.com/flightbase/logbook/internal/migrate"
	"github.com/flightbase/logbook/internal/store"
)

// openStore loads configuration, opens the database and runs the schema
// check. Subcommands share this so every one of them sees the same
// schema the server would.
func openStore(ctx context.Context) (*store.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.OpenDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	mgr := migrate.NewManager(db, migrate.Steps, time.Duration(cfg.Migrate.CheckThrottle))
	if err := mgr.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	return store.New(db), cfg, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
