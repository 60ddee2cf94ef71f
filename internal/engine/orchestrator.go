package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nalabelle/miniflux-filter/internal/activity"
	"github.com/nalabelle/miniflux-filter/internal/logger"
	"github.com/nalabelle/miniflux-filter/internal/miniflux"
	"github.com/nalabelle/miniflux-filter/internal/rules"
	pkgerrors "github.com/nalabelle/miniflux-filter/pkg/errors"
	"github.com/nalabelle/miniflux-filter/pkg/logging"
	"github.com/nalabelle/miniflux-filter/pkg/metrics"
)

// ErrAlreadyRunning is returned when a manual run is requested for a feed
// that already has an execution in flight. It is an expected outcome, not a
// fault; callers report it and move on.
var ErrAlreadyRunning = pkgerrors.ErrConflict.WithMessage("sync already running for this feed")

// UpstreamClient is the slice of the Miniflux client the orchestrator needs.
type UpstreamClient interface {
	FetchUnread(ctx context.Context, feedID int64) ([]miniflux.Entry, error)
	MarkRead(ctx context.Context, entryID int64) error
}

// ExecutionResult summarizes one feed run.
type ExecutionResult struct {
	FeedID    int64 `json:"feed_id"`
	Processed int   `json:"processed"`
	Marked    int   `json:"marked"`
	Errors    int   `json:"errors"`
}

// Orchestrator drives periodic and on-demand rule evaluation. Runs for
// distinct feeds proceed concurrently up to maxConcurrent; at most one run
// per feed is ever in flight, enforced by an atomic test-and-set per feed id.
type Orchestrator struct {
	store         *rules.Store
	client        UpstreamClient
	activityLog   *activity.Log
	log           logger.Logger
	pollInterval  time.Duration
	maxConcurrent int

	inFlight sync.Map
}

func NewOrchestrator(store *rules.Store, client UpstreamClient, activityLog *activity.Log, log logger.Logger, pollInterval time.Duration, maxConcurrent int) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		store:         store,
		client:        client,
		activityLog:   activityLog,
		log:           log,
		pollInterval:  pollInterval,
		maxConcurrent: maxConcurrent,
	}
}

// Start runs the periodic sync loop until ctx is cancelled. A failed tick is
// logged and the loop keeps going; the next tick is the retry mechanism.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.log.InfowCtx(ctx, "Starting sync loop", "poll_interval", o.pollInterval)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	o.RunTick(ctx)

	for {
		select {
		case <-ticker.C:
			o.RunTick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunTick reloads rule files (picking up manual edits) and executes every
// enabled feed through a bounded worker group. Feeds with a run already in
// flight are skipped for this cycle rather than queued.
func (o *Orchestrator) RunTick(ctx context.Context) {
	if err := o.store.ReloadAll(); err != nil {
		o.log.ErrorwCtx(ctx, "Failed to reload rule sets", "error", err)
		return
	}

	sets := o.store.List()
	stats := o.store.Stats()
	metrics.SetActiveRuleSets(stats.EnabledRuleSets)

	if len(sets) == 0 {
		o.log.DebugwCtx(ctx, "No rule sets, skipping cycle")
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for _, rs := range sets {
		if !rs.IsEnabled() {
			o.log.DebugwCtx(ctx, "Skipping disabled rule set", "feed_id", rs.FeedID)
			continue
		}
		rs := rs
		g.Go(func() error {
			result, err := o.runFeed(gCtx, rs)
			if err != nil {
				if pkgerrors.IsConflict(err) {
					o.log.DebugwCtx(gCtx, "Feed run already in flight, skipping", "feed_id", rs.FeedID)
					return nil
				}
				o.log.ErrorwCtx(gCtx, "Feed run failed", "feed_id", rs.FeedID, "error", err)
				return nil
			}
			o.log.InfowCtx(gCtx, "Feed run complete",
				"feed_id", rs.FeedID,
				"processed", result.Processed,
				"marked", result.Marked,
				"errors", result.Errors,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.log.ErrorwCtx(ctx, "Sync cycle aborted", "error", err)
	}
}

// RunFeedNow executes a single feed on demand. It returns ErrAlreadyRunning
// immediately when a run for this feed is in flight; it never blocks waiting
// for one to finish.
func (o *Orchestrator) RunFeedNow(ctx context.Context, feedID int64) (*ExecutionResult, error) {
	rs := o.store.Get(feedID)
	if rs == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("feed_id", feedID)
	}
	if !rs.IsEnabled() {
		return nil, pkgerrors.ErrValidation.WithMessage("rule set is disabled")
	}

	return o.runFeed(ctx, rs)
}

func (o *Orchestrator) runFeed(ctx context.Context, rs *rules.RuleSet) (*ExecutionResult, error) {
	feedID := rs.FeedID

	if _, loaded := o.inFlight.LoadOrStore(feedID, struct{}{}); loaded {
		return nil, ErrAlreadyRunning
	}
	defer o.inFlight.Delete(feedID)

	ctx = logging.WithFeedID(ctx, feedID)
	start := time.Now()

	entries, err := o.client.FetchUnread(ctx, feedID)
	if err != nil {
		o.recordFailure(feedID, fmt.Sprintf("Failed to fetch unread entries: %v", err))
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		metrics.ObserveSyncRunDuration(time.Since(start), "error")
		return nil, err
	}

	result := &ExecutionResult{FeedID: feedID, Processed: len(entries)}

	for i := range entries {
		entry := &entries[i]
		ruleIndex, matched := rs.Match(entry)
		if !matched {
			continue
		}

		if err := o.client.MarkRead(ctx, entry.ID); err != nil {
			result.Errors++
			o.activityLog.Append(activity.Entry{
				Level:      activity.LevelError,
				Target:     "engine",
				FeedID:     feedID,
				EntryTitle: entry.Title,
				Message:    fmt.Sprintf("Failed to mark entry as read: %v", err),
			})
			o.log.WarnwCtx(ctx, "Failed to mark entry as read", "entry_id", entry.ID, "error", err)
			continue
		}

		result.Marked++
		o.activityLog.Append(activity.Entry{
			Level:      activity.LevelInfo,
			Target:     "engine",
			FeedID:     feedID,
			EntryTitle: entry.Title,
			Message:    fmt.Sprintf("Marked as read (rule %d)", ruleIndex+1),
		})
	}

	metrics.EntriesProcessedTotal.Add(float64(result.Processed))
	metrics.EntriesMarkedTotal.Add(float64(result.Marked))
	metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
	metrics.ObserveSyncRunDuration(time.Since(start), "ok")

	return result, nil
}

func (o *Orchestrator) recordFailure(feedID int64, message string) {
	o.activityLog.Append(activity.Entry{
		Level:   activity.LevelError,
		Target:  "engine",
		FeedID:  feedID,
		Message: message,
	})
}
