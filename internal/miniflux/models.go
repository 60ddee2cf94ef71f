package miniflux

// Entry is an item reported by the Miniflux API. This service never persists
// entries; the upstream unread flag is the only processing state.
type Entry struct {
	ID          int64    `json:"id"`
	FeedID      int64    `json:"feed_id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Content     string   `json:"content"`
	Author      string   `json:"author"`
	Status      string   `json:"status"`
	Feed        Feed     `json:"feed"`
	PublishedAt string   `json:"published_at"`
	CreatedAt   string   `json:"created_at"`
	Tags        []string `json:"tags"`
}

type Feed struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	SiteURL string `json:"site_url"`
	FeedURL string `json:"feed_url"`
}

type entriesResponse struct {
	Total   int64   `json:"total"`
	Entries []Entry `json:"entries"`
}

type markEntriesRequest struct {
	EntryIDs []int64 `json:"entry_ids"`
	Status   string  `json:"status"`
}
