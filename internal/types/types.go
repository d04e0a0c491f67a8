package types

import (
	"encoding/json"
	"time"
)

// SyncStatus tracks where an entry sits in the push cycle. It is owned
// exclusively by the sync orchestrator once a record exists; the only
// sanctioned transitions are pending→synced, pending→error, and any
// local edit forcing the record back to pending.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// EntryStatus is the forward-only workflow state of a flight entry.
// It is mutated by the host application, never by the sync engine.
type EntryStatus string

const (
	StatusDraft     EntryStatus = "draft"
	StatusSubmitted EntryStatus = "submitted"
	StatusApproved  EntryStatus = "approved"
	StatusAnchored  EntryStatus = "anchored"
)

// FlightEntry is one flight record, the mutable unit synchronized
// between device and server.
type FlightEntry struct {
	LocalID  string `json:"local_id"`
	ServerID *int64 `json:"server_id,omitempty"`

	Status     EntryStatus `json:"status"`
	SyncStatus SyncStatus  `json:"sync_status"`

	FlightDate    time.Time `json:"flight_date"`
	Registration  string    `json:"registration"`
	AircraftType  string    `json:"aircraft_type,omitempty"`
	DepartureICAO string    `json:"departure_icao"`
	ArrivalICAO   string    `json:"arrival_icao"`

	// Duration fields in minutes.
	TotalTime      int `json:"total_time"`
	PICTime        int `json:"pic_time"`
	SICTime        int `json:"sic_time"`
	DualTime       int `json:"dual_time"`
	NightTime      int `json:"night_time"`
	InstrumentTime int `json:"instrument_time"`
	XCTime         int `json:"xc_time"`

	DayLandings   int `json:"day_landings"`
	NightLandings int `json:"night_landings"`

	NightTimeMethod string          `json:"night_time_method"`
	Remarks         string          `json:"remarks,omitempty"`
	Attachments     []string        `json:"attachments,omitempty"`
	AdditionalData  json.RawMessage `json:"additional_data,omitempty"`
	ContentHash     *string         `json:"content_hash,omitempty"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Reconciled reports whether the remote authority has accepted this
// entry and assigned it a server identity.
func (e *FlightEntry) Reconciled() bool {
	return e.ServerID != nil
}

// MaxDutyTime returns the largest of the individual duty-time fields.
// TotalTime must never be below this; callers validate before writing.
func (e *FlightEntry) MaxDutyTime() int {
	max := e.PICTime
	for _, v := range []int{e.SICTime, e.DualTime, e.NightTime, e.InstrumentTime} {
		if v > max {
			max = v
		}
	}
	return max
}

// EntryPatch is a partial update to a flight entry. Nil fields are left
// untouched. Any set domain field resets the entry's sync status to
// pending unless SyncStatus carries an explicit override.
type EntryPatch struct {
	Status        *EntryStatus
	FlightDate    *time.Time
	Registration  *string
	AircraftType  *string
	DepartureICAO *string
	ArrivalICAO   *string

	TotalTime      *int
	PICTime        *int
	SICTime        *int
	DualTime       *int
	NightTime      *int
	InstrumentTime *int
	XCTime         *int

	DayLandings   *int
	NightLandings *int

	NightTimeMethod *string
	Remarks         *string
	Attachments     *[]string
	AdditionalData  *json.RawMessage
	ContentHash     *string

	// SyncStatus overrides the pending-after-edit default. Reserved for
	// the sync orchestrator; host applications leave it nil.
	SyncStatus *SyncStatus
}

// IsZero reports whether the patch touches no fields at all.
func (p *EntryPatch) IsZero() bool {
	return p.Status == nil && p.FlightDate == nil && p.Registration == nil &&
		p.AircraftType == nil && p.DepartureICAO == nil && p.ArrivalICAO == nil &&
		p.TotalTime == nil && p.PICTime == nil && p.SICTime == nil &&
		p.DualTime == nil && p.NightTime == nil && p.InstrumentTime == nil &&
		p.XCTime == nil && p.DayLandings == nil && p.NightLandings == nil &&
		p.NightTimeMethod == nil && p.Remarks == nil && p.Attachments == nil &&
		p.AdditionalData == nil && p.ContentHash == nil && p.SyncStatus == nil
}

// Airport is immutable reference data keyed by its ICAO code. Rows are
// seeded in bulk and read-only afterwards; stale entries are excluded
// from search via Active rather than deleted.
type Airport struct {
	ID          int64   `json:"id"`
	ICAO        string  `json:"icao_code"`
	IATA        *string `json:"iata_code,omitempty"`
	Name        string  `json:"name"`
	City        string  `json:"city,omitempty"`
	Country     string  `json:"country,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    *string `json:"timezone,omitempty"`
	ElevationFt *int    `json:"elevation_ft,omitempty"`
	Type        string  `json:"type,omitempty"`
	Active      bool    `json:"active"`
}

// SyncStats summarizes entry counts by sync state.
type SyncStats struct {
	Total        int64      `json:"total"`
	Pending      int64      `json:"pending"`
	Synced       int64      `json:"synced"`
	Failed       int64      `json:"failed"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}
