// Package syncer drives every pending entry toward synced or error:
// it reads pending rows, pushes them to the remote authority as one
// batch, reconciles server-assigned identities, and records per-entry
// outcomes. At most one pass runs at a time.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/flightbase/logbook/internal/remote"
	"github.com/flightbase/logbook/internal/types"
)

var (
	// ErrAlreadySyncing rejects a pass requested while one is in
	// flight. Synchronization is advisory; the next attempt picks up
	// anything unfinished.
	ErrAlreadySyncing = errors.New("sync already in progress")

	// ErrOffline aborts a pass before the remote is contacted.
	ErrOffline = errors.New("no connection")

	// ErrNoOutcomeDetail reports a response that carried no per-entry
	// outcomes. Under the strict policy the batch is left pending.
	ErrNoOutcomeDetail = errors.New("sync response carried no per-entry outcomes")
)

// EntryStore is the slice of the persistence layer the orchestrator
// writes sync state through.
type EntryStore interface {
	ListPending(ctx context.Context, limit int) ([]types.FlightEntry, error)
	MarkSynced(ctx context.Context, localID string, serverID int64) error
	MarkSyncedUnreconciled(ctx context.Context, localID string) error
	MarkSyncError(ctx context.Context, localID string) error
	Stats(ctx context.Context) (*types.SyncStats, error)
}

// Pusher submits one serialized batch to the remote endpoint.
type Pusher interface {
	Push(ctx context.Context, entries []types.FlightEntry) (*remote.PushResponse, error)
}

// Connectivity is the point-in-time online check consulted before a pass.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Options tune a pass.
type Options struct {
	// BatchLimit caps entries per pass; zero means all pending.
	BatchLimit int
	// StrictResponse treats a response without per-entry outcomes as a
	// transport-grade failure. When false, the legacy behavior applies:
	// the whole batch is optimistically marked synced, unreconciled.
	StrictResponse bool
}

// Result is the structured outcome of one pass. The UI layer receives
// this rather than raw errors; Err is nil on success.
type Result struct {
	Success bool             `json:"success"`
	Synced  int              `json:"synced"`
	Failed  int              `json:"failed"`
	Err     error            `json:"-"`
	Message string           `json:"message,omitempty"`
	Stats   *types.SyncStats `json:"stats,omitempty"`
}

// BackgroundOutcome is the tri-state result reported to the host
// platform's periodic scheduler.
type BackgroundOutcome int

const (
	OutcomeNoData BackgroundOutcome = iota
	OutcomeNewData
	OutcomeFailed
)

func (o BackgroundOutcome) String() string {
	switch o {
	case OutcomeNewData:
		return "new-data"
	case OutcomeFailed:
		return "failed"
	default:
		return "no-data"
	}
}

// Orchestrator owns the sync state of every entry: once a record
// exists, nothing else writes its sync status, server id or last-synced
// timestamp.
type Orchestrator struct {
	store   EntryStore
	pusher  Pusher
	conn    Connectivity
	opts    Options
	feed    *StatusFeed
	syncing atomic.Bool
}

// New creates an Orchestrator.
func New(store EntryStore, pusher Pusher, conn Connectivity, opts Options) *Orchestrator {
	return &Orchestrator{
		store:  store,
		pusher: pusher,
		conn:   conn,
		opts:   opts,
		feed:   NewStatusFeed(),
	}
}

// Feed exposes the status feed for observers.
func (o *Orchestrator) Feed() *StatusFeed {
	return o.feed
}

// SyncNow runs one interactive pass, emitting status transitions to
// observers. A pass already in flight rejects the call immediately.
func (o *Orchestrator) SyncNow(ctx context.Context) Result {
	return o.run(ctx, false)
}

// RunBackground runs one silent pass for the periodic trigger: no
// status emission, tri-state outcome for the scheduler.
func (o *Orchestrator) RunBackground(ctx context.Context) BackgroundOutcome {
	r := o.run(ctx, true)
	switch {
	case errors.Is(r.Err, ErrAlreadySyncing):
		// An interactive pass is doing the work; this wake-up had
		// nothing to do.
		return OutcomeNoData
	case r.Err != nil || r.Failed > 0:
		return OutcomeFailed
	case r.Synced > 0:
		return OutcomeNewData
	default:
		return OutcomeNoData
	}
}

// run is the pass algorithm. The busy flag is checked and set before
// the first suspension point, so no two passes interleave past it.
func (o *Orchestrator) run(ctx context.Context, silent bool) Result {
	if !o.syncing.CompareAndSwap(false, true) {
		return Result{Err: ErrAlreadySyncing, Message: ErrAlreadySyncing.Error()}
	}
	defer o.syncing.Store(false)

	emit := func(s Status) {
		if !silent {
			o.feed.Publish(s)
		}
	}
	emit(StatusSyncing)

	result := o.pass(ctx)

	if stats, err := o.store.Stats(ctx); err == nil {
		result.Stats = stats
	}

	if result.Err != nil || result.Failed > 0 {
		emit(StatusError)
	} else {
		emit(StatusSuccess)
	}
	emit(StatusIdle)

	slog.Info("sync pass finished",
		"component", "syncer",
		"action", "pass_complete",
		"success", result.Success,
		"synced", result.Synced,
		"failed", result.Failed,
		"error", errString(result.Err),
	)
	return result
}

func (o *Orchestrator) pass(ctx context.Context) Result {
	// A confirmed-offline state aborts before the remote is contacted.
	if !o.conn.Online(ctx) {
		return Result{Err: ErrOffline, Message: ErrOffline.Error()}
	}

	pending, err := o.store.ListPending(ctx, o.opts.BatchLimit)
	if err != nil {
		return Result{Err: err, Message: "read pending entries: " + err.Error()}
	}
	if len(pending) == 0 {
		return Result{Success: true}
	}

	// The remote call happens strictly between the transactional local
	// read above and the transactional write-back below; no transaction
	// is held across it.
	resp, err := o.pusher.Push(ctx, pending)
	if err != nil {
		// Transport failure: rows stay pending so the next pass
		// retries the same set.
		return Result{Err: err, Message: err.Error()}
	}

	if !resp.HasDetail() {
		if o.opts.StrictResponse {
			return Result{Err: ErrNoOutcomeDetail, Message: ErrNoOutcomeDetail.Error()}
		}
		// Legacy endpoint: no per-entry detail means the whole batch
		// was accepted. No server identities arrive this way.
		for _, entry := range pending {
			if err := o.store.MarkSyncedUnreconciled(ctx, entry.LocalID); err != nil {
				return Result{Err: err, Synced: 0, Message: "record outcome: " + err.Error()}
			}
		}
		return Result{Success: true, Synced: len(pending)}
	}

	result := Result{}
	for _, item := range resp.Synced {
		if err := o.store.MarkSynced(ctx, item.LocalID, item.ServerID); err != nil {
			result.Err = err
			result.Message = "record outcome: " + err.Error()
			return result
		}
		result.Synced++
	}
	for _, item := range resp.Failed {
		if err := o.store.MarkSyncError(ctx, item.LocalID); err != nil {
			result.Err = err
			result.Message = "record outcome: " + err.Error()
			return result
		}
		slog.Warn("entry rejected by remote",
			"component", "syncer",
			"action", "entry_rejected",
			"local_id", item.LocalID,
			"reason", item.Reason,
		)
		result.Failed++
	}

	if result.Failed > 0 {
		result.Message = "remote rejected entries"
	} else {
		result.Success = true
	}
	return result
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
