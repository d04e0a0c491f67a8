package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flightbase/logbook/internal/types"
)

func TestCreateEntry_AssignsDefaults(t *testing.T) {
	s := newTestStore(t)

	// Given: a new entry with no identity or sync state
	entry := seedEntry(t, s, "2025-06-01", "N12345")

	// Then: the store assigned local identity and defaults
	if entry.LocalID == "" {
		t.Error("local id not assigned")
	}
	if entry.SyncStatus != types.SyncPending {
		t.Errorf("sync status = %s, want pending", entry.SyncStatus)
	}
	if entry.Status != types.StatusDraft {
		t.Errorf("status = %s, want draft", entry.Status)
	}
	if entry.NightTimeMethod != "manual" {
		t.Errorf("night time method = %q, want manual", entry.NightTimeMethod)
	}
	if entry.ServerID != nil {
		t.Error("server id should be unset on creation")
	}
	if entry.CreatedAt.IsZero() || entry.UpdatedAt.IsZero() {
		t.Error("timestamps not assigned")
	}

	// And: the row round-trips
	got, err := s.GetEntry(context.Background(), entry.LocalID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Registration != "N12345" || got.TotalTime != 95 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetEntry(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListEntries_ReverseChronological(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, "2025-01-10", "N1")
	seedEntry(t, s, "2025-03-05", "N2")
	seedEntry(t, s, "2025-02-20", "N3")

	entries, err := s.ListEntries(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	want := []string{"N2", "N3", "N1"}
	for i, reg := range want {
		if entries[i].Registration != reg {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].Registration, reg)
		}
	}
}

func TestListEntries_StatusFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	e1 := seedEntry(t, s, "2025-01-10", "N1")
	seedEntry(t, s, "2025-02-10", "N2")

	submitted := types.StatusSubmitted
	if _, err := s.UpdateEntry(context.Background(), e1.LocalID, &types.EntryPatch{Status: &submitted}); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	entries, err := s.ListEntries(context.Background(), ListOptions{Status: &submitted, Limit: 10})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].LocalID != e1.LocalID {
		t.Errorf("filtered list = %+v, want just %s", entries, e1.LocalID)
	}
}

func TestUpdateEntry_DomainEditResetsSyncStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: a synced entry
	entry := seedEntry(t, s, "2025-06-01", "N12345")
	if err := s.MarkSynced(ctx, entry.LocalID, 101); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	// When: any domain field is patched
	remarks := "corrected block time"
	updated, err := s.UpdateEntry(ctx, entry.LocalID, &types.EntryPatch{Remarks: &remarks})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	// Then: the entry is pending again and keeps its server identity
	if updated.SyncStatus != types.SyncPending {
		t.Errorf("sync status = %s, want pending after edit", updated.SyncStatus)
	}
	if updated.ServerID == nil || *updated.ServerID != 101 {
		t.Error("server id lost on edit")
	}
	if updated.Remarks != remarks {
		t.Errorf("remarks = %q", updated.Remarks)
	}
}

func TestUpdateEntry_WorkflowStatusDoesNotResetSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := seedEntry(t, s, "2025-06-01", "N12345")
	if err := s.MarkSynced(ctx, entry.LocalID, 7); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	// Workflow transitions are orthogonal to sync state.
	approved := types.StatusApproved
	updated, err := s.UpdateEntry(ctx, entry.LocalID, &types.EntryPatch{Status: &approved})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	if updated.SyncStatus != types.SyncSynced {
		t.Errorf("sync status = %s, want synced preserved", updated.SyncStatus)
	}
	if updated.Status != types.StatusApproved {
		t.Errorf("status = %s, want approved", updated.Status)
	}
}

func TestUpdateEntry_EmptyPatchIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := seedEntry(t, s, "2025-06-01", "N12345")

	got, err := s.UpdateEntry(ctx, entry.LocalID, &types.EntryPatch{})
	if err != nil {
		t.Fatalf("empty patch should be a no-op, got %v", err)
	}
	if got.UpdatedAt != entry.UpdatedAt {
		t.Error("no-op patch must not refresh updated_at")
	}
}

func TestUpdateEntry_AttachmentsAndAdditionalData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := seedEntry(t, s, "2025-06-01", "N12345")

	attachments := []string{"scan-1.pdf", "scan-2.pdf"}
	extra := json.RawMessage(`{"approach":"ILS 04R"}`)
	updated, err := s.UpdateEntry(ctx, entry.LocalID, &types.EntryPatch{
		Attachments:    &attachments,
		AdditionalData: &extra,
	})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	if len(updated.Attachments) != 2 || updated.Attachments[1] != "scan-2.pdf" {
		t.Errorf("attachments = %v", updated.Attachments)
	}
	if string(updated.AdditionalData) != `{"approach":"ILS 04R"}` {
		t.Errorf("additional data = %s", updated.AdditionalData)
	}
}

func TestUpdateEntry_NotFound(t *testing.T) {
	s := newTestStore(t)
	remarks := "x"
	_, err := s.UpdateEntry(context.Background(), "missing", &types.EntryPatch{Remarks: &remarks})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := seedEntry(t, s, "2025-06-01", "N12345")
	if err := s.DeleteEntry(ctx, entry.LocalID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := s.GetEntry(ctx, entry.LocalID); !errors.Is(err, ErrNotFound) {
		t.Errorf("entry still present after delete: %v", err)
	}
	if err := s.DeleteEntry(ctx, entry.LocalID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestMarkSynced_SetsIdentityAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := seedEntry(t, s, "2025-06-01", "N12345")
	if err := s.MarkSynced(ctx, entry.LocalID, 4242); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	got, err := s.GetEntry(ctx, entry.LocalID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.SyncStatus != types.SyncSynced {
		t.Errorf("sync status = %s, want synced", got.SyncStatus)
	}
	if got.ServerID == nil || *got.ServerID != 4242 {
		t.Error("server id not reconciled")
	}
	if got.LastSyncedAt == nil {
		t.Error("last synced timestamp not set")
	}
	if !got.Reconciled() {
		t.Error("entry should report reconciled")
	}
}

func TestListPending_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Flight dates deliberately out of order; pending ordering follows
	// creation time, not flight date.
	first := seedEntry(t, s, "2025-06-03", "N1")
	second := seedEntry(t, s, "2025-06-01", "N2")
	third := seedEntry(t, s, "2025-06-02", "N3")

	if err := s.MarkSynced(ctx, second.LocalID, 9); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	pending, err := s.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].LocalID != first.LocalID || pending[1].LocalID != third.LocalID {
		t.Errorf("pending order = [%s %s], want [%s %s]",
			pending[0].LocalID, pending[1].LocalID, first.LocalID, third.LocalID)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedEntry(t, s, "2025-06-01", "N1")
	seedEntry(t, s, "2025-06-02", "N2")
	c := seedEntry(t, s, "2025-06-03", "N3")

	if err := s.MarkSynced(ctx, a.LocalID, 1); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if err := s.MarkSyncError(ctx, c.LocalID); err != nil {
		t.Fatalf("MarkSyncError: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Synced != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastSyncedAt == nil {
		t.Error("last synced timestamp missing")
	}
	if time.Since(*stats.LastSyncedAt) > time.Minute {
		t.Error("last synced timestamp stale")
	}
}

func TestDeviceID_StableAcrossCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID: %v", err)
	}
	second, err := s.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID: %v", err)
	}
	if first == "" || first != second {
		t.Errorf("device id not stable: %q vs %q", first, second)
	}
}
