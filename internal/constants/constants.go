package constants

import "time"

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// EntriesPageSize is the page size used when paginating unread entries.
	EntriesPageSize = 100
	// MaxEntryPages bounds worst-case work for a single feed run.
	MaxEntryPages = 50
)

const (
	DefaultPollInterval   = 300 * time.Second
	DefaultMaxConcurrent  = 4
	DefaultActivityBuffer = 500
)

const (
	RuleFilePrefix = "feed_"
	RuleFileSuffix = ".toml"
)
