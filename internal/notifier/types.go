package notifier

import (
	"time"

	"guildwatch/internal/transport"
)

// Config controls delivery.
type Config struct {
	Target  transport.ChatTarget
	Options transport.SendOptions

	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
	HistorySize int
}

type HistoryItem struct {
	At   time.Time
	Kind string
	Text string
}

// Event is the payload of notifier.* bus events.
type Event struct {
	Kind     string        `json:"kind"`
	ChatID   int64         `json:"chat_id"`
	ThreadID int           `json:"thread_id,omitempty"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}

type Stats struct {
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	Deferred uint64 `json:"deferred"`
}
