package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/flightbase/logbook/internal/migrate"
	"github.com/flightbase/logbook/internal/store"
	"github.com/flightbase/logbook/internal/syncer"
	"github.com/flightbase/logbook/internal/types"
)

const testAPIKey = "test-key-123"

// fakeSync scripts the orchestrator for handler tests.
type fakeSync struct {
	result syncer.Result
	feed   *syncer.StatusFeed
	calls  int
}

func (f *fakeSync) SyncNow(ctx context.Context) syncer.Result {
	f.calls++
	return f.result
}

func (f *fakeSync) Feed() *syncer.StatusFeed {
	return f.feed
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *fakeSync) {
	t.Helper()

	db, err := store.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	m := migrate.NewManager(db, migrate.Steps, 24*time.Hour)
	if err := m.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := store.New(db)
	sync := &fakeSync{feed: syncer.NewStatusFeed()}
	srv := httptest.NewServer(NewRouter(NewHandler(s, sync, testAPIKey, "test")))
	t.Cleanup(srv.Close)
	return srv, s, sync
}

func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func validEntryBody() map[string]any {
	return map[string]any{
		"flight_date":    "2025-06-01",
		"registration":   "N12345",
		"departure_icao": "KJFK",
		"arrival_icao":   "KBOS",
		"total_time":     95,
		"pic_time":       95,
		"day_landings":   1,
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "healthy" {
		t.Errorf("health status = %v, want healthy", body["status"])
	}
}

func TestProtectedRoutes_RejectMissingKey(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q, want problem+json", ct)
	}
}

func TestCreateEntry(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/entries", validEntryBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	entry := decodeBody[types.FlightEntry](t, resp)
	if entry.LocalID == "" {
		t.Error("entry has no local id")
	}
	if entry.SyncStatus != types.SyncPending {
		t.Errorf("sync status = %s, want pending", entry.SyncStatus)
	}
	if entry.Status != types.StatusDraft {
		t.Errorf("workflow status = %s, want draft", entry.Status)
	}
}

func TestCreateEntry_ValidationProblem(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := validEntryBody()
	body["registration"] = ""
	body["total_time"] = 10 // below pic_time

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/entries", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	problem := decodeBody[ProblemWithErrors](t, resp)
	if len(problem.Errors) != 2 {
		t.Errorf("field errors = %+v, want registration and total_time", problem.Errors)
	}
}

func TestListEntries_StatusFilter(t *testing.T) {
	srv, s, _ := newTestServer(t)
	ctx := context.Background()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/entries", validEntryBody())
	created := decodeBody[types.FlightEntry](t, resp)
	if err := s.MarkSynced(ctx, created.LocalID, 500); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	doRequest(t, http.MethodPost, srv.URL+"/api/v1/entries", validEntryBody()).Body.Close()

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/entries?sync_status=synced", nil)
	body := decodeBody[struct {
		Entries []types.FlightEntry `json:"entries"`
		Count   int                 `json:"count"`
	}](t, resp)

	if body.Count != 1 || body.Entries[0].LocalID != created.LocalID {
		t.Errorf("filtered list = %+v, want just the synced entry", body)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/entries?sync_status=bogus", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", resp.StatusCode)
	}
}

func TestGetEntry_NotFoundProblem(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/entries/does-not-exist", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q, want problem+json", ct)
	}
}

func TestUpdateEntry_ResetsSyncStatus(t *testing.T) {
	srv, s, _ := newTestServer(t)
	ctx := context.Background()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/entries", validEntryBody())
	created := decodeBody[types.FlightEntry](t, resp)
	if err := s.MarkSynced(ctx, created.LocalID, 77); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	resp = doRequest(t, http.MethodPatch, srv.URL+"/api/v1/entries/"+created.LocalID,
		map[string]any{"remarks": "corrected the route"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated := decodeBody[types.FlightEntry](t, resp)
	if updated.Remarks != "corrected the route" {
		t.Errorf("remarks = %q", updated.Remarks)
	}
	if updated.SyncStatus != types.SyncPending {
		t.Errorf("sync status = %s, want pending after a domain edit", updated.SyncStatus)
	}
}

func TestDeleteEntry(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/entries", validEntryBody())
	created := decodeBody[types.FlightEntry](t, resp)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/entries/"+created.LocalID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/entries/"+created.LocalID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestTriggerSync_Outcomes(t *testing.T) {
	srv, _, sync := newTestServer(t)

	sync.result = syncer.Result{Success: true, Synced: 3}
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/sync", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decodeBody[syncer.Result](t, resp)
	if !result.Success || result.Synced != 3 {
		t.Errorf("result = %+v", result)
	}

	sync.result = syncer.Result{Err: syncer.ErrAlreadySyncing}
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/sync", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", resp.StatusCode)
	}

	sync.result = syncer.Result{Err: syncer.ErrOffline}
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/sync", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("offline status = %d, want 503", resp.StatusCode)
	}
}

func TestStatus_ReportsFeedCurrent(t *testing.T) {
	srv, _, sync := newTestServer(t)
	sync.feed.Publish(syncer.StatusSyncing)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/status", nil)
	body := decodeBody[map[string]string](t, resp)
	if body["sync_status"] != "syncing" {
		t.Errorf("sync_status = %q, want syncing", body["sync_status"])
	}
}

func TestNightEstimate(t *testing.T) {
	srv, s, _ := newTestServer(t)

	_, err := s.BulkInsertAirports(context.Background(), []types.Airport{
		{ICAO: "KJFK", Name: "John F Kennedy International Airport", Latitude: 40.64, Longitude: -73.78, Active: true},
		{ICAO: "KBOS", Name: "Boston Logan International Airport", Latitude: 42.36, Longitude: -71.01, Active: true},
	})
	if err != nil {
		t.Fatalf("seed airports: %v", err)
	}

	// A one-hour winter-night leg is all night minutes.
	url := srv.URL + "/api/v1/night-estimate?from=KJFK&to=KBOS" +
		"&start=2025-01-10T04:00:00Z&end=2025-01-10T05:00:00Z"
	resp := doRequest(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["night_minutes"].(float64) != 60 {
		t.Errorf("night_minutes = %v, want 60", body["night_minutes"])
	}

	resp = doRequest(t, http.MethodGet,
		srv.URL+"/api/v1/night-estimate?from=ZZZZ&to=KBOS&start=2025-01-10T04:00:00Z&end=2025-01-10T05:00:00Z", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown airport = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet,
		srv.URL+"/api/v1/night-estimate?from=KJFK&to=KBOS&start=bogus&end=2025-01-10T05:00:00Z", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad timestamp = %d, want 400", resp.StatusCode)
	}
}

func TestAirports_SearchAndGet(t *testing.T) {
	srv, s, _ := newTestServer(t)

	_, err := s.BulkInsertAirports(context.Background(), []types.Airport{
		{ICAO: "EGLL", Name: "London Heathrow Airport", City: "London", Country: "GB", Active: true},
		{ICAO: "EGLC", Name: "London City Airport", City: "London", Country: "GB", Active: true},
	})
	if err != nil {
		t.Fatalf("seed airports: %v", err)
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/airports/search?q=EGLL", nil)
	body := decodeBody[struct {
		Airports []types.Airport `json:"airports"`
		Count    int             `json:"count"`
	}](t, resp)
	if body.Count == 0 || body.Airports[0].ICAO != "EGLL" {
		t.Errorf("search result = %+v, want EGLL first", body)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/airports/search", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/airports/eglc", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get airport status = %d, want 200", resp.StatusCode)
	}
	airport := decodeBody[types.Airport](t, resp)
	if airport.ICAO != "EGLC" {
		t.Errorf("airport = %+v, want EGLC", airport)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/airports/ZZZZ", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown airport = %d, want 404", resp.StatusCode)
	}
}
