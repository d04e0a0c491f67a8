// Package api is the local control surface a host application drives
// the engine through: entry CRUD, airport lookup, sync triggering and
// status observation. It listens on loopback; the bearer key guards
// against other local processes, not the open internet.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flightbase/logbook/internal/flighttime"
	"github.com/flightbase/logbook/internal/store"
	"github.com/flightbase/logbook/internal/syncer"
	"github.com/flightbase/logbook/internal/types"
)

const flightDateLayout = "2006-01-02"

// SyncService is the slice of the orchestrator the handlers call.
type SyncService interface {
	SyncNow(ctx context.Context) syncer.Result
	Feed() *syncer.StatusFeed
}

// Handler implements the API handlers
type Handler struct {
	store   *store.Store
	sync    SyncService
	apiKey  string
	version string
}

// NewHandler creates a Handler.
func NewHandler(s *store.Store, sync SyncService, apiKey, version string) *Handler {
	return &Handler{
		store:   s,
		sync:    sync,
		apiKey:  apiKey,
		version: version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	airports, err := h.store.CountAirports(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"version":  h.version,
		"entries":  stats.Total,
		"airports": airports,
	})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sync_status": h.sync.Feed().Current(),
	})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// TriggerSync handles POST /api/v1/sync: one foreground pass.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result := h.sync.SyncNow(r.Context())
	switch {
	case errors.Is(result.Err, syncer.ErrAlreadySyncing):
		WriteProblem(w, r, http.StatusConflict, "A sync pass is already running")
	case errors.Is(result.Err, syncer.ErrOffline):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Device is offline")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// entryRequest is the wire shape for creating an entry. Dates arrive as
// plain calendar days, not instants.
type entryRequest struct {
	FlightDate    string `json:"flight_date"`
	Registration  string `json:"registration"`
	AircraftType  string `json:"aircraft_type"`
	DepartureICAO string `json:"departure_icao"`
	ArrivalICAO   string `json:"arrival_icao"`

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
	Remarks         string          `json:"remarks"`
	Attachments     []string        `json:"attachments"`
	AdditionalData  json.RawMessage `json:"additional_data"`
}

func (req *entryRequest) validate() []FieldError {
	var errs []FieldError

	date, err := time.Parse(flightDateLayout, req.FlightDate)
	if err != nil {
		errs = append(errs, FieldError{Field: "flight_date", Message: "must be a YYYY-MM-DD date"})
	} else if date.After(time.Now().UTC().AddDate(0, 0, 1)) {
		errs = append(errs, FieldError{Field: "flight_date", Message: "must not be in the future"})
	}
	if req.Registration == "" {
		errs = append(errs, FieldError{Field: "registration", Message: "is required"})
	}
	if req.DepartureICAO == "" {
		errs = append(errs, FieldError{Field: "departure_icao", Message: "is required"})
	}
	if req.ArrivalICAO == "" {
		errs = append(errs, FieldError{Field: "arrival_icao", Message: "is required"})
	}

	for field, v := range map[string]int{
		"total_time":      req.TotalTime,
		"pic_time":        req.PICTime,
		"sic_time":        req.SICTime,
		"dual_time":       req.DualTime,
		"night_time":      req.NightTime,
		"instrument_time": req.InstrumentTime,
		"xc_time":         req.XCTime,
		"day_landings":    req.DayLandings,
		"night_landings":  req.NightLandings,
	} {
		if v < 0 {
			errs = append(errs, FieldError{Field: field, Message: "must not be negative"})
		}
	}
	for _, d := range []int{req.PICTime, req.SICTime, req.DualTime, req.NightTime, req.InstrumentTime} {
		if d > req.TotalTime {
			errs = append(errs, FieldError{Field: "total_time", Message: "must cover every duty-time field"})
			break
		}
	}
	return errs
}

func (req *entryRequest) toEntry() *types.FlightEntry {
	date, _ := time.Parse(flightDateLayout, req.FlightDate)
	return &types.FlightEntry{
		FlightDate:      date,
		Registration:    req.Registration,
		AircraftType:    req.AircraftType,
		DepartureICAO:   req.DepartureICAO,
		ArrivalICAO:     req.ArrivalICAO,
		TotalTime:       req.TotalTime,
		PICTime:         req.PICTime,
		SICTime:         req.SICTime,
		DualTime:        req.DualTime,
		NightTime:       req.NightTime,
		InstrumentTime:  req.InstrumentTime,
		XCTime:          req.XCTime,
		DayLandings:     req.DayLandings,
		NightLandings:   req.NightLandings,
		NightTimeMethod: req.NightTimeMethod,
		Remarks:         req.Remarks,
		Attachments:     req.Attachments,
		AdditionalData:  req.AdditionalData,
	}
}

// CreateEntry handles POST /api/v1/entries.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	entry, err := h.store.CreateEntry(r.Context(), req.toEntry())
	if err != nil {
		slog.Error("create entry failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries handles GET /api/v1/entries with optional status and
// limit query parameters.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := types.EntryStatus(s)
		switch status {
		case types.StatusDraft, types.StatusSubmitted, types.StatusApproved, types.StatusAnchored:
			opts.Status = &status
		default:
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown workflow status %q", s))
			return
		}
	}
	if s := r.URL.Query().Get("sync_status"); s != "" {
		status := types.SyncStatus(s)
		switch status {
		case types.SyncPending, types.SyncSynced, types.SyncError:
			opts.SyncStatus = &status
		default:
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown sync status %q", s))
			return
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	entries, err := h.store.ListEntries(r.Context(), opts)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetEntry handles GET /api/v1/entries/{id}.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// entryPatchRequest is the wire shape for partial updates; absent
// fields stay untouched.
type entryPatchRequest struct {
	Status        *string `json:"status"`
	FlightDate    *string `json:"flight_date"`
	Registration  *string `json:"registration"`
	AircraftType  *string `json:"aircraft_type"`
	DepartureICAO *string `json:"departure_icao"`
	ArrivalICAO   *string `json:"arrival_icao"`

	TotalTime      *int `json:"total_time"`
	PICTime        *int `json:"pic_time"`
	SICTime        *int `json:"sic_time"`
	DualTime       *int `json:"dual_time"`
	NightTime      *int `json:"night_time"`
	InstrumentTime *int `json:"instrument_time"`
	XCTime         *int `json:"xc_time"`

	DayLandings   *int `json:"day_landings"`
	NightLandings *int `json:"night_landings"`

	NightTimeMethod *string          `json:"night_time_method"`
	Remarks         *string          `json:"remarks"`
	Attachments     *[]string        `json:"attachments"`
	AdditionalData  *json.RawMessage `json:"additional_data"`
}

func (req *entryPatchRequest) toPatch() (*types.EntryPatch, []FieldError) {
	var errs []FieldError
	patch := &types.EntryPatch{
		Registration:    req.Registration,
		AircraftType:    req.AircraftType,
		DepartureICAO:   req.DepartureICAO,
		ArrivalICAO:     req.ArrivalICAO,
		TotalTime:       req.TotalTime,
		PICTime:         req.PICTime,
		SICTime:         req.SICTime,
		DualTime:        req.DualTime,
		NightTime:       req.NightTime,
		InstrumentTime:  req.InstrumentTime,
		XCTime:          req.XCTime,
		DayLandings:     req.DayLandings,
		NightLandings:   req.NightLandings,
		NightTimeMethod: req.NightTimeMethod,
		Remarks:         req.Remarks,
		Attachments:     req.Attachments,
		AdditionalData:  req.AdditionalData,
	}

	if req.Status != nil {
		status := types.EntryStatus(*req.Status)
		switch status {
		case types.StatusDraft, types.StatusSubmitted, types.StatusApproved, types.StatusAnchored:
			patch.Status = &status
		default:
			errs = append(errs, FieldError{Field: "status", Message: "unknown workflow status"})
		}
	}
	if req.FlightDate != nil {
		date, err := time.Parse(flightDateLayout, *req.FlightDate)
		if err != nil {
			errs = append(errs, FieldError{Field: "flight_date", Message: "must be a YYYY-MM-DD date"})
		} else {
			patch.FlightDate = &date
		}
	}
	for field, v := range map[string]*int{
		"total_time":      req.TotalTime,
		"pic_time":        req.PICTime,
		"sic_time":        req.SICTime,
		"dual_time":       req.DualTime,
		"night_time":      req.NightTime,
		"instrument_time": req.InstrumentTime,
		"xc_time":         req.XCTime,
		"day_landings":    req.DayLandings,
		"night_landings":  req.NightLandings,
	} {
		if v != nil && *v < 0 {
			errs = append(errs, FieldError{Field: field, Message: "must not be negative"})
		}
	}
	return patch, errs
}

// UpdateEntry handles PATCH /api/v1/entries/{id}.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	patch, errs := req.toPatch()
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	entry, err := h.store.UpdateEntry(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteEntry handles DELETE /api/v1/entries/{id}.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchAirports handles GET /api/v1/airports/search?q=...
func (h *Handler) SearchAirports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		WriteProblem(w, r, http.StatusBadRequest, "q query parameter is required")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 0 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	airports, err := h.store.SearchAirports(r.Context(), query, limit)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"airports": airports,
		"count":    len(airports),
	})
}

// NightEstimate handles GET /api/v1/night-estimate. It resolves both
// airports and estimates how many minutes of the leg fall outside civil
// daylight.
func (h *Handler) NightEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "start must be an RFC 3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "end must be an RFC 3339 timestamp")
		return
	}

	dep, err := h.store.GetAirport(r.Context(), q.Get("from"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	arr, err := h.store.GetAirport(r.Context(), q.Get("to"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	night, err := flighttime.NightMinutes(start.UTC(), end.UTC(),
		dep.Latitude, dep.Longitude, arr.Latitude, arr.Longitude)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	total := int(end.Sub(start) / time.Minute)
	writeJSON(w, http.StatusOK, map[string]any{
		"night_minutes": night,
		"total_minutes": total,
		"night":         flighttime.FormatMinutes(night),
	})
}

// GetAirport handles GET /api/v1/airports/{icao}.
func (h *Handler) GetAirport(w http.ResponseWriter, r *http.Request) {
	airport, err := h.store.GetAirport(r.Context(), chi.URLParam(r, "icao"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, airport)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
