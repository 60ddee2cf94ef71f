package management

import (
	"context"

	"github.com/nalabelle/miniflux-filter/internal/activity"
	"github.com/nalabelle/miniflux-filter/internal/engine"
	"github.com/nalabelle/miniflux-filter/internal/miniflux"
	"github.com/nalabelle/miniflux-filter/internal/rules"
	pkgerrors "github.com/nalabelle/miniflux-filter/pkg/errors"
)

// FeedLister is the slice of the Miniflux client the management API needs.
type FeedLister interface {
	Feeds(ctx context.Context) ([]miniflux.Feed, error)
}

// Service mediates between the HTTP handlers and the rule store,
// orchestrator, activity log, and upstream client.
type Service struct {
	store       *rules.Store
	orch        *engine.Orchestrator
	activityLog *activity.Log
	feeds       FeedLister
}

func NewService(store *rules.Store, orch *engine.Orchestrator, activityLog *activity.Log, feeds FeedLister) *Service {
	return &Service{
		store:       store,
		orch:        orch,
		activityLog: activityLog,
		feeds:       feeds,
	}
}

func (s *Service) ListRuleSets(ctx context.Context) []*rules.RuleSet {
	return s.store.List()
}

func (s *Service) GetRuleSet(ctx context.Context, feedID int64) (*rules.RuleSet, error) {
	rs := s.store.Get(feedID)
	if rs == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("feed_id", feedID)
	}
	return rs, nil
}

func (s *Service) CreateRuleSet(ctx context.Context, req CreateRuleSetRequest) (*rules.RuleSet, error) {
	if existing := s.store.Get(req.FeedID); existing != nil {
		return nil, pkgerrors.ErrConflict.WithMessage("rule set already exists for this feed")
	}

	rs := &rules.RuleSet{
		FeedID:   req.FeedID,
		FeedName: req.FeedName,
		Enabled:  req.Enabled,
		Rules:    req.Rules,
	}
	if rs.Rules == nil {
		rs.Rules = []rules.Rule{}
	}

	if err := s.store.Upsert(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *Service) UpdateRuleSet(ctx context.Context, feedID int64, rs *rules.RuleSet) (*rules.RuleSet, error) {
	if rs.FeedID != feedID {
		return nil, pkgerrors.ErrValidation.WithMessage("feed id in body does not match URL")
	}
	if existing := s.store.Get(feedID); existing == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("feed_id", feedID)
	}

	if err := s.store.Upsert(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *Service) DeleteRuleSet(ctx context.Context, feedID int64) error {
	return s.store.Delete(feedID)
}

func (s *Service) ReloadRuleSets(ctx context.Context) error {
	return s.store.ReloadAll()
}

func (s *Service) ExecuteNow(ctx context.Context, feedID int64) (*engine.ExecutionResult, error) {
	return s.orch.RunFeedNow(ctx, feedID)
}

// ExecuteAll triggers a full tick in the background and returns immediately.
func (s *Service) ExecuteAll(ctx context.Context) {
	go s.orch.RunTick(context.WithoutCancel(ctx))
}

func (s *Service) ListFeeds(ctx context.Context) ([]FeedInfo, error) {
	feeds, err := s.feeds.Feeds(ctx)
	if err != nil {
		return nil, err
	}

	withRules := make(map[int64]bool)
	for _, rs := range s.store.List() {
		withRules[rs.FeedID] = true
	}

	infos := make([]FeedInfo, 0, len(feeds))
	for _, feed := range feeds {
		infos = append(infos, FeedInfo{
			ID:       feed.ID,
			Title:    feed.Title,
			SiteURL:  feed.SiteURL,
			FeedURL:  feed.FeedURL,
			HasRules: withRules[feed.ID],
		})
	}
	return infos, nil
}

func (s *Service) RecentLogs(ctx context.Context) []activity.Entry {
	return s.activityLog.Recent()
}

func (s *Service) ClearLogs(ctx context.Context) {
	s.activityLog.Clear()
}

func (s *Service) Stats(ctx context.Context) rules.Stats {
	return s.store.Stats()
}
