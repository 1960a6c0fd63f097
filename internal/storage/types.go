package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. An empty Driver disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one outbound notification attempt.
type AuditEntry struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Text      string    `json:"text"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}

// Store is the persistence API used by the notifier and the ops server.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to limit entries, newest first.
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	Close() error
}
