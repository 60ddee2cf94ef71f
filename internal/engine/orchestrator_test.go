package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalabelle/miniflux-filter/internal/activity"
	"github.com/nalabelle/miniflux-filter/internal/logger"
	"github.com/nalabelle/miniflux-filter/internal/miniflux"
	"github.com/nalabelle/miniflux-filter/internal/rules"
	pkgerrors "github.com/nalabelle/miniflux-filter/pkg/errors"
)

// fakeUpstream simulates the Miniflux unread flag: MarkRead removes the entry
// from subsequent FetchUnread responses.
type fakeUpstream struct {
	mu      sync.Mutex
	unread  map[int64][]miniflux.Entry
	marked  []int64
	fetches int

	fetchErr   error
	markErr    map[int64]error
	fetchGate  chan struct{}
	fetchBegun chan struct{}
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		unread:  make(map[int64][]miniflux.Entry),
		markErr: make(map[int64]error),
	}
}

func (f *fakeUpstream) addUnread(feedID int64, entries ...miniflux.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[feedID] = append(f.unread[feedID], entries...)
}

func (f *fakeUpstream) FetchUnread(ctx context.Context, feedID int64) ([]miniflux.Entry, error) {
	if f.fetchBegun != nil {
		f.fetchBegun <- struct{}{}
	}
	if f.fetchGate != nil {
		<-f.fetchGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]miniflux.Entry(nil), f.unread[feedID]...), nil
}

func (f *fakeUpstream) MarkRead(ctx context.Context, entryID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.markErr[entryID]; err != nil {
		return err
	}

	f.marked = append(f.marked, entryID)
	for feedID, entries := range f.unread {
		kept := entries[:0]
		for _, e := range entries {
			if e.ID != entryID {
				kept = append(kept, e)
			}
		}
		f.unread[feedID] = kept
	}
	return nil
}

func (f *fakeUpstream) markedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.marked...)
}

func newTestOrchestrator(t *testing.T, upstream *fakeUpstream) (*Orchestrator, *rules.Store, *activity.Log) {
	t.Helper()
	store := rules.NewStore(t.TempDir(), logger.NopLogger())
	require.NoError(t, store.ReloadAll())

	activityLog := activity.NewLog(100)
	orch := NewOrchestrator(store, upstream, activityLog, logger.NopLogger(), time.Minute, 4)
	return orch, store, activityLog
}

func sponsoredRuleSet(feedID int64) *rules.RuleSet {
	return &rules.RuleSet{
		FeedID: feedID,
		Rules: []rules.Rule{
			{Action: rules.ActionMarkRead, Conditions: []rules.Condition{
				{Field: rules.FieldTitle, Operator: rules.OpContains, Value: "sponsored"},
			}},
		},
	}
}

func TestRunFeedNow(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.addUnread(1,
		miniflux.Entry{ID: 10, FeedID: 1, Title: "Sponsored Deal"},
		miniflux.Entry{ID: 11, FeedID: 1, Title: "Real News"},
	)

	orch, store, activityLog := newTestOrchestrator(t, upstream)
	require.NoError(t, store.Upsert(sponsoredRuleSet(1)))

	result, err := orch.RunFeedNow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.FeedID)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Marked)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, []int64{10}, upstream.markedIDs())

	recent := activityLog.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, activity.LevelInfo, recent[0].Level)
	assert.Equal(t, "Sponsored Deal", recent[0].EntryTitle)
	assert.Contains(t, recent[0].Message, "rule 1")
}

func TestRunFeedNowIdempotent(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.addUnread(1,
		miniflux.Entry{ID: 10, FeedID: 1, Title: "Sponsored Deal"},
		miniflux.Entry{ID: 11, FeedID: 1, Title: "Real News"},
	)

	orch, store, _ := newTestOrchestrator(t, upstream)
	require.NoError(t, store.Upsert(sponsoredRuleSet(1)))

	first, err := orch.RunFeedNow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Marked)

	second, err := orch.RunFeedNow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.Marked)
	assert.Equal(t, []int64{10}, upstream.markedIDs())
}

func TestRunFeedNowUnknownFeed(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, newFakeUpstream())

	_, err := orch.RunFeedNow(context.Background(), 99)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRunFeedNowDisabledFeed(t *testing.T) {
	upstream := newFakeUpstream()
	orch, store, _ := newTestOrchestrator(t, upstream)

	disabled := false
	rs := sponsoredRuleSet(1)
	rs.Enabled = &disabled
	require.NoError(t, store.Upsert(rs))

	_, err := orch.RunFeedNow(context.Background(), 1)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, 0, upstream.fetches)
}

func TestRunFeedNowRejectsConcurrentRun(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.addUnread(1, miniflux.Entry{ID: 10, FeedID: 1, Title: "Sponsored Deal"})
	upstream.fetchGate = make(chan struct{})
	upstream.fetchBegun = make(chan struct{}, 1)

	orch, store, _ := newTestOrchestrator(t, upstream)
	require.NoError(t, store.Upsert(sponsoredRuleSet(1)))

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunFeedNow(context.Background(), 1)
		done <- err
	}()

	<-upstream.fetchBegun

	_, err := orch.RunFeedNow(context.Background(), 1)
	assert.True(t, pkgerrors.IsConflict(err))

	close(upstream.fetchGate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, upstream.fetches)
}

func TestRunFeedFetchFailureAborts(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.fetchErr = fmt.Errorf("connection refused")

	orch, store, activityLog := newTestOrchestrator(t, upstream)
	require.NoError(t, store.Upsert(sponsoredRuleSet(1)))

	_, err := orch.RunFeedNow(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, upstream.markedIDs())

	recent := activityLog.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, activity.LevelError, recent[0].Level)
}

func TestRunFeedMarkFailureContinues(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.addUnread(1,
		miniflux.Entry{ID: 10, FeedID: 1, Title: "Sponsored A"},
		miniflux.Entry{ID: 11, FeedID: 1, Title: "Sponsored B"},
		miniflux.Entry{ID: 12, FeedID: 1, Title: "Sponsored C"},
	)
	upstream.markErr[11] = fmt.Errorf("entry gone")

	orch, store, _ := newTestOrchestrator(t, upstream)
	require.NoError(t, store.Upsert(sponsoredRuleSet(1)))

	result, err := orch.RunFeedNow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Marked)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, []int64{10, 12}, upstream.markedIDs())
}

func TestRunTickSkipsDisabledAndRunsEnabled(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.addUnread(1, miniflux.Entry{ID: 10, FeedID: 1, Title: "Sponsored Deal"})
	upstream.addUnread(2, miniflux.Entry{ID: 20, FeedID: 2, Title: "Sponsored Deal"})

	orch, store, _ := newTestOrchestrator(t, upstream)
	require.NoError(t, store.Upsert(sponsoredRuleSet(1)))

	disabled := false
	rs2 := sponsoredRuleSet(2)
	rs2.Enabled = &disabled
	require.NoError(t, store.Upsert(rs2))

	orch.RunTick(context.Background())

	assert.Equal(t, []int64{10}, upstream.markedIDs())
	assert.Equal(t, 1, upstream.fetches)
}

func TestRunTickPicksUpFileEdits(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.addUnread(3, miniflux.Entry{ID: 30, FeedID: 3, Title: "Sponsored Deal"})

	orch, store, _ := newTestOrchestrator(t, upstream)

	// Written behind the store's back, the way a user edits rule files.
	other := rules.NewStore(store.Dir(), logger.NopLogger())
	require.NoError(t, other.Upsert(sponsoredRuleSet(3)))

	orch.RunTick(context.Background())

	assert.Equal(t, []int64{30}, upstream.markedIDs())
}
