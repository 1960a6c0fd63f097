package source

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrEmptyRoster means the roster page parsed to zero members.
	ErrEmptyRoster = errors.New("roster page has no members")
	// ErrHTTPStatus wraps non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected http status")
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "guildwatch/1.0 (+https://github.com/guildwatch)"
	// maxBodySize bounds page reads.
	maxBodySize int64 = 8 << 20
)

// RosterLayout locates members in the roster table.
type RosterLayout struct {
	RowSelector string
	NameColumn  int
	LevelColumn int
}

// FeedLayout locates records in the feed table.
type FeedLayout struct {
	RowSelector     string
	SkipHeader      bool
	TargetColumn    int
	TimestampColumn int
	ActorColumn     int
	// NameSeparator precedes the name inside target and actor cells.
	NameSeparator string
}

// Config is shared by both clients. Client may be nil.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}
