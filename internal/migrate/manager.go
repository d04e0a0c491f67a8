// Package migrate brings the local database up to the schema version
// this build expects. Migrations are applied in ascending version order,
// each inside its own transaction together with its ledger row, so a
// failed step leaves neither partial DDL nor a ledger entry behind.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flightbase/logbook/internal/dbx"
)

// ErrMigrationFailed wraps any step failure. Callers must treat it as
// fatal to further persistence-layer use until resolved.
var ErrMigrationFailed = errors.New("schema migration failed")

const (
	metaTable         = "logbook_meta"
	metaLastCheck     = "last_schema_check"
	metaLastCheckGoal = "last_schema_check_target"
	ledgerTable       = "schema_migrations"
)

// Manager evolves the local schema to one target version. The
// session-satisfied flag lives on the instance, not in a package global,
// so tests construct a fresh Manager (or call Reset) to force a probe.
//
// The flag is a performance guard for a single cooperative process, not
// a mutual-exclusion mechanism; persisted state is the only thing that
// survives restarts.
type Manager struct {
	db       *sql.DB
	steps    []Step
	throttle time.Duration

	// now is swappable for throttle tests.
	now func() time.Time

	satisfied bool
}

// NewManager creates a Manager that migrates db through steps. The
// throttle window is the minimum elapsed time before the manager will
// re-probe the on-disk schema version.
func NewManager(db *sql.DB, steps []Step, throttle time.Duration) *Manager {
	return &Manager{
		db:       db,
		steps:    steps,
		throttle: throttle,
		now:      time.Now,
	}
}

// Target returns the schema version this Manager migrates to.
func (m *Manager) Target() int {
	if len(m.steps) == 0 {
		return 0
	}
	return m.steps[len(m.steps)-1].Version
}

// Reset clears the in-memory session flag so the next EnsureSchema call
// consults persisted state again.
func (m *Manager) Reset() {
	m.satisfied = false
}

// EnsureSchema brings the database to the target version. Repeat calls
// within one process lifetime return immediately once the target has
// been reached; across restarts, a persisted last-checked timestamp
// throttles redundant version probes.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if m.satisfied {
		return nil
	}

	if err := m.ensureMetaTable(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	if m.checkedRecently(ctx) {
		m.satisfied = true
		return nil
	}

	current, err := m.probeVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: probe version: %w", ErrMigrationFailed, err)
	}

	if current < m.Target() {
		if err := m.apply(ctx, current); err != nil {
			return err
		}
		slog.Info("schema migrated",
			"component", "migrate",
			"action", "schema_migrated",
			"from", current,
			"to", m.Target(),
		)
	}

	if err := m.stampChecked(ctx); err != nil {
		return fmt.Errorf("%w: record check time: %w", ErrMigrationFailed, err)
	}

	m.satisfied = true
	return nil
}

// ensureMetaTable creates the key/value meta table used for the
// last-checked timestamp. Idempotent.
func (m *Manager) ensureMetaTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+metaTable+` (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// checkedRecently reports whether a probe ran inside the throttle window
// for the same target version. A stored target from an older build never
// suppresses the probe a newer build needs.
func (m *Manager) checkedRecently(ctx context.Context) bool {
	var stamp, goal string
	err := m.db.QueryRowContext(ctx,
		`SELECT value FROM `+metaTable+` WHERE key = ?`, metaLastCheck).Scan(&stamp)
	if err != nil {
		return false
	}
	err = m.db.QueryRowContext(ctx,
		`SELECT value FROM `+metaTable+` WHERE key = ?`, metaLastCheckGoal).Scan(&goal)
	if err != nil {
		return false
	}

	if v, err := strconv.Atoi(goal); err != nil || v != m.Target() {
		return false
	}

	checked, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return false
	}
	return m.now().UTC().Sub(checked) < m.throttle
}

// probeVersion reads the highest applied version from the ledger.
// A missing ledger table means version 0, regardless of what application
// tables already exist; the steps themselves tolerate pre-existing tables.
func (m *Manager) probeVersion(ctx context.Context) (int, error) {
	exists, err := tableExists(ctx, m.db, ledgerTable)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = m.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM `+ledgerTable).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// apply runs every step above current in ascending order, each step and
// its ledger row in one transaction.
func (m *Manager) apply(ctx context.Context, current int) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+ledgerTable+` (
			version     INTEGER PRIMARY KEY,
			applied_at  TEXT NOT NULL,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: create ledger: %w", ErrMigrationFailed, err)
	}

	for _, step := range m.steps {
		if step.Version <= current {
			continue
		}

		err := dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := step.Apply(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO `+ledgerTable+` (version, applied_at, description) VALUES (?, ?, ?)`,
				step.Version, m.now().UTC().Format(time.RFC3339), step.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: step %d (%s): %w", ErrMigrationFailed, step.Version, step.Description, err)
		}

		slog.Info("migration applied",
			"component", "migrate",
			"action", "step_applied",
			"version", step.Version,
			"description", step.Description,
		)
	}

	return nil
}

// stampChecked persists the wall-clock time of this successful check.
func (m *Manager) stampChecked(ctx context.Context) error {
	now := m.now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{
		metaLastCheck:     now,
		metaLastCheckGoal: strconv.Itoa(m.Target()),
	} {
		_, err := m.db.ExecContext(ctx, `
			INSERT INTO `+metaTable+` (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return err
		}
	}
	return nil
}

// tableExists reports whether a table is present in the database.
func tableExists(ctx context.Context, q dbx.DBTX, name string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// columnExists reports whether a column is present on a table.
func columnExists(ctx context.Context, q dbx.DBTX, table, column string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
