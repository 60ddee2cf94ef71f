package activity

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one recorded evaluation outcome.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      Level     `json:"level"`
	Target     string    `json:"target"`
	FeedID     int64     `json:"feed_id,omitempty"`
	EntryTitle string    `json:"entry_title,omitempty"`
	Message    string    `json:"message"`
}

// Log is a fixed-capacity circular buffer of recent entries. Append and
// eviction are O(1). A single instance is shared between the orchestrator
// (writer) and the management API (reader).
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	size    int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{
		entries: make([]Entry, capacity),
	}
}

func (l *Log) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
}

// Recent returns a snapshot of the buffered entries, newest first.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next = 0
	l.size = 0
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
