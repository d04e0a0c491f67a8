package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flightbase/logbook/internal/types"
	"github.com/oklog/ulid/v2"
)

const dateLayout = "2006-01-02"

// entryColumns is the canonical select list; scanEntry depends on this
// exact order.
const entryColumns = `local_id, server_id, status, sync_status, flight_date, registration,
	aircraft_type, departure_icao, arrival_icao, total_time, pic_time, sic_time,
	dual_time, night_time, instrument_time, xc_time, day_landings, night_landings,
	night_time_method, remarks, attachments, additional_data, content_hash,
	last_synced_at, created_at, updated_at`

// CreateEntry inserts a new flight entry, assigning its local identity
// and defaults: sync status pending, draft workflow status, timestamps.
func (s *Store) CreateEntry(ctx context.Context, e *types.FlightEntry) (*types.FlightEntry, error) {
	// Second precision keeps in-memory values identical to what a
	// round-trip through RFC 3339 columns returns.
	now := time.Now().UTC().Truncate(time.Second)
	entry := *e
	entry.LocalID = ulid.Make().String()
	entry.ServerID = nil
	entry.SyncStatus = types.SyncPending
	entry.LastSyncedAt = nil
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Status == "" {
		entry.Status = types.StatusDraft
	}
	if entry.NightTimeMethod == "" {
		entry.NightTimeMethod = "manual"
	}

	attachments, err := marshalAttachments(entry.Attachments)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flight_entries (`+entryColumns+`)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`,
		entry.LocalID, entry.Status, entry.SyncStatus,
		entry.FlightDate.Format(dateLayout), entry.Registration, entry.AircraftType,
		entry.DepartureICAO, entry.ArrivalICAO,
		entry.TotalTime, entry.PICTime, entry.SICTime, entry.DualTime,
		entry.NightTime, entry.InstrumentTime, entry.XCTime,
		entry.DayLandings, entry.NightLandings,
		entry.NightTimeMethod, entry.Remarks,
		attachments, rawJSONOrNil(entry.AdditionalData), entry.ContentHash,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	return &entry, nil
}

// GetEntry retrieves one entry by its local id.
func (s *Store) GetEntry(ctx context.Context, localID string) (*types.FlightEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM flight_entries WHERE local_id = ?
	`, localID)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return entry, nil
}

// ListOptions filters and bounds ListEntries.
type ListOptions struct {
	// Status filters by workflow status when non-nil.
	Status *types.EntryStatus
	// SyncStatus filters by sync state when non-nil.
	SyncStatus *types.SyncStatus
	// Limit caps the result; zero means no limit.
	Limit int
}

// ListEntries returns entries in reverse chronological order by flight
// date, then creation time.
func (s *Store) ListEntries(ctx context.Context, opts ListOptions) ([]types.FlightEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM flight_entries`
	var (
		where []string
		args  []any
	)
	if opts.Status != nil {
		where = append(where, `status = ?`)
		args = append(args, *opts.Status)
	}
	if opts.SyncStatus != nil {
		where = append(where, `sync_status = ?`)
		args = append(args, *opts.SyncStatus)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY flight_date DESC, created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	return s.queryEntries(ctx, query, args...)
}

// ListPending returns all pending entries, oldest created first. The
// ordering is deliberate: it keeps retries fair across partial failures.
// A limit of zero means no limit.
func (s *Store) ListPending(ctx context.Context, limit int) ([]types.FlightEntry, error) {
	query := `
		SELECT ` + entryColumns + ` FROM flight_entries
		WHERE sync_status = ?
		ORDER BY created_at ASC, local_id ASC`
	args := []any{types.SyncPending}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryEntries(ctx, query, args...)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]types.FlightEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []types.FlightEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// UpdateEntry applies a partial patch. An empty patch is a no-op
// returning the current row, not an error. Touching any domain field
// resets the sync status to pending unless the patch carries an explicit
// sync-status override.
func (s *Store) UpdateEntry(ctx context.Context, localID string, patch *types.EntryPatch) (*types.FlightEntry, error) {
	if patch == nil || patch.IsZero() {
		return s.GetEntry(ctx, localID)
	}

	fields, err := patchFields(patch)
	if err != nil {
		return nil, err
	}

	set := make([]string, 0, len(fields)+2)
	args := make([]any, 0, len(fields)+2)
	domainTouched := false
	for _, f := range fields {
		set = append(set, f.column+" = ?")
		args = append(args, f.value)
		if f.domain {
			domainTouched = true
		}
	}

	if domainTouched && patch.SyncStatus == nil {
		set = append(set, "sync_status = ?")
		args = append(args, types.SyncPending)
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))

	args = append(args, localID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE flight_entries SET `+strings.Join(set, ", ")+` WHERE local_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return s.GetEntry(ctx, localID)
}

// DeleteEntry removes an entry by local id.
func (s *Store) DeleteEntry(ctx context.Context, localID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flight_entries WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSynced records a confirmed remote acceptance: the server-assigned
// identity, sync status synced, and the sync timestamp. This is the only
// sanctioned way a row reaches sync_status = synced.
func (s *Store) MarkSynced(ctx context.Context, localID string, serverID int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE flight_entries
		SET server_id = ?, sync_status = ?, last_synced_at = ?, updated_at = ?
		WHERE local_id = ?
	`, serverID, types.SyncSynced, now, now, localID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSyncedUnreconciled records acceptance by a legacy endpoint that
// returned no server identities. The row reaches synced without a
// server id rather than pretending the local id is one.
func (s *Store) MarkSyncedUnreconciled(ctx context.Context, localID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE flight_entries
		SET sync_status = ?, last_synced_at = ?, updated_at = ?
		WHERE local_id = ?
	`, types.SyncSynced, now, now, localID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSyncError records a confirmed remote rejection. Transport failures
// never reach here; those rows stay pending for the next pass.
func (s *Store) MarkSyncError(ctx context.Context, localID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE flight_entries SET sync_status = ?, updated_at = ? WHERE local_id = ?
	`, types.SyncError, time.Now().UTC().Format(time.RFC3339), localID)
	if err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats returns aggregate entry counts by sync state and the most
// recent sync timestamp.
func (s *Store) Stats(ctx context.Context) (*types.SyncStats, error) {
	var stats types.SyncStats
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(sync_status = 'pending'), 0),
		       COALESCE(SUM(sync_status = 'synced'), 0),
		       COALESCE(SUM(sync_status = 'error'), 0),
		       MAX(last_synced_at)
		FROM flight_entries
	`).Scan(&stats.Total, &stats.Pending, &stats.Synced, &stats.Failed, &last)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	if last.Valid {
		if t, err := time.Parse(time.RFC3339, last.String); err == nil {
			stats.LastSyncedAt = &t
		}
	}
	return &stats, nil
}

// patchField pairs a column with its new value. domain marks fields
// whose mutation resets the sync status.
type patchField struct {
	column string
	value  any
	domain bool
}

// patchFields maps a typed patch onto column assignments. This is the
// single declarative field→column table; no runtime name translation.
func patchFields(p *types.EntryPatch) ([]patchField, error) {
	var fields []patchField
	add := func(column string, value any, domain bool) {
		fields = append(fields, patchField{column: column, value: value, domain: domain})
	}

	if p.Status != nil {
		add("status", *p.Status, false)
	}
	if p.FlightDate != nil {
		add("flight_date", p.FlightDate.Format(dateLayout), true)
	}
	if p.Registration != nil {
		add("registration", *p.Registration, true)
	}
	if p.AircraftType != nil {
		add("aircraft_type", *p.AircraftType, true)
	}
	if p.DepartureICAO != nil {
		add("departure_icao", *p.DepartureICAO, true)
	}
	if p.ArrivalICAO != nil {
		add("arrival_icao", *p.ArrivalICAO, true)
	}
	if p.TotalTime != nil {
		add("total_time", *p.TotalTime, true)
	}
	if p.PICTime != nil {
		add("pic_time", *p.PICTime, true)
	}
	if p.SICTime != nil {
		add("sic_time", *p.SICTime, true)
	}
	if p.DualTime != nil {
		add("dual_time", *p.DualTime, true)
	}
	if p.NightTime != nil {
		add("night_time", *p.NightTime, true)
	}
	if p.InstrumentTime != nil {
		add("instrument_time", *p.InstrumentTime, true)
	}
	if p.XCTime != nil {
		add("xc_time", *p.XCTime, true)
	}
	if p.DayLandings != nil {
		add("day_landings", *p.DayLandings, true)
	}
	if p.NightLandings != nil {
		add("night_landings", *p.NightLandings, true)
	}
	if p.NightTimeMethod != nil {
		add("night_time_method", *p.NightTimeMethod, true)
	}
	if p.Remarks != nil {
		add("remarks", *p.Remarks, true)
	}
	if p.Attachments != nil {
		data, err := marshalAttachments(*p.Attachments)
		if err != nil {
			return nil, err
		}
		add("attachments", data, true)
	}
	if p.AdditionalData != nil {
		add("additional_data", rawJSONOrNil(*p.AdditionalData), true)
	}
	if p.ContentHash != nil {
		add("content_hash", *p.ContentHash, true)
	}
	if p.SyncStatus != nil {
		add("sync_status", *p.SyncStatus, false)
	}

	return fields, nil
}

func marshalAttachments(attachments []string) (any, error) {
	if attachments == nil {
		return nil, nil
	}
	data, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("marshal attachments: %w", err)
	}
	return string(data), nil
}

func rawJSONOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// scanEntry scans a row in entryColumns order.
func scanEntry(scanner interface{ Scan(...any) error }) (*types.FlightEntry, error) {
	var entry types.FlightEntry
	var serverID sql.NullInt64
	var flightDate, createdAt, updatedAt string
	var attachments, additionalData, contentHash, lastSyncedAt sql.NullString

	err := scanner.Scan(
		&entry.LocalID,
		&serverID,
		&entry.Status,
		&entry.SyncStatus,
		&flightDate,
		&entry.Registration,
		&entry.AircraftType,
		&entry.DepartureICAO,
		&entry.ArrivalICAO,
		&entry.TotalTime,
		&entry.PICTime,
		&entry.SICTime,
		&entry.DualTime,
		&entry.NightTime,
		&entry.InstrumentTime,
		&entry.XCTime,
		&entry.DayLandings,
		&entry.NightLandings,
		&entry.NightTimeMethod,
		&entry.Remarks,
		&attachments,
		&additionalData,
		&contentHash,
		&lastSyncedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if serverID.Valid {
		entry.ServerID = &serverID.Int64
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &entry.Attachments); err != nil {
			return nil, fmt.Errorf("parse attachments: %w", err)
		}
	}
	if additionalData.Valid && additionalData.String != "" {
		entry.AdditionalData = json.RawMessage(additionalData.String)
	}
	if contentHash.Valid {
		entry.ContentHash = &contentHash.String
	}
	if lastSyncedAt.Valid {
		if t, err := time.Parse(time.RFC3339, lastSyncedAt.String); err == nil {
			entry.LastSyncedAt = &t
		}
	}
	if t, err := time.Parse(dateLayout, flightDate); err == nil {
		entry.FlightDate = t
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		entry.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		entry.UpdatedAt = t
	}

	return &entry, nil
}
