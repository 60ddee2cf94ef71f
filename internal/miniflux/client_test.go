package miniflux

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalabelle/miniflux-filter/internal/config"
	"github.com/nalabelle/miniflux-filter/internal/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.MinifluxConfig{
		URL:            server.URL,
		APIToken:       "test-token",
		RequestTimeout: 5 * time.Second,
		RequestsPerSec: 1000,
		Burst:          1000,
	}, nil, logger.NopLogger())

	return client, server
}

func TestCheckConnection(t *testing.T) {
	var gotToken string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Auth-Token")
		assert.Equal(t, "/v1/me", r.URL.Path)
		fmt.Fprint(w, `{"id":1,"username":"admin"}`)
	}))

	require.NoError(t, client.CheckConnection(context.Background()))
	assert.Equal(t, "test-token", gotToken)
}

func TestCheckConnectionAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error_message":"access unauthorized"}`)
	}))

	err := client.CheckConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestFetchUnreadSinglePage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/feeds/42/entries", r.URL.Path)
		assert.Equal(t, "unread", r.URL.Query().Get("status"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"total": 2,
			"entries": []Entry{
				{ID: 1, FeedID: 42, Title: "one"},
				{ID: 2, FeedID: 42, Title: "two"},
			},
		})
	}))

	entries, err := client.FetchUnread(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Title)
}

func TestFetchUnreadPaginates(t *testing.T) {
	const total = 150
	var requests int

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)
		limit := 0
		fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
		require.Equal(t, 100, limit)

		batch := make([]Entry, 0, limit)
		for i := offset; i < total && i < offset+limit; i++ {
			batch = append(batch, Entry{ID: int64(i + 1), FeedID: 7})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total":   total,
			"entries": batch,
		})
	}))

	entries, err := client.FetchUnread(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, entries, total)
	assert.Equal(t, 2, requests)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(total), entries[total-1].ID)
}

func TestFetchUnreadUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.FetchUnread(context.Background(), 1)
	assert.Error(t, err)
}

func TestMarkRead(t *testing.T) {
	var got markEntriesRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/entries", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.MarkRead(context.Background(), 123))
	assert.Equal(t, []int64{123}, got.EntryIDs)
	assert.Equal(t, "read", got.Status)
}

func TestFeeds(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/feeds", r.URL.Path)
		json.NewEncoder(w).Encode([]Feed{
			{ID: 1, Title: "News", SiteURL: "https://news.example.com"},
			{ID: 2, Title: "Tech", SiteURL: "https://tech.example.com"},
		})
	}))

	feeds, err := client.Feeds(context.Background())
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "News", feeds[0].Title)
}
