package management

import "github.com/nalabelle/miniflux-filter/internal/rules"

// APIResponse is the envelope every management endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CreateRuleSetRequest struct {
	FeedID   int64        `json:"feed_id" binding:"required"`
	FeedName string       `json:"feed_name"`
	Enabled  *bool        `json:"enabled"`
	Rules    []rules.Rule `json:"rules"`
}

// FeedInfo is an upstream feed annotated with whether rules exist for it.
type FeedInfo struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	SiteURL  string `json:"site_url"`
	FeedURL  string `json:"feed_url"`
	HasRules bool   `json:"has_rules"`
}
