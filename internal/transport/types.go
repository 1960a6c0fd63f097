package transport

import "context"

// ChatTarget addresses one chat, optionally a forum topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Sender delivers text messages to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// ChatInfo is what the adapter knows about a resolved chat.
type ChatInfo struct {
	ID    int64
	Title string
	Type  string
}

// Adapter is a Sender that can also verify its credentials and destination.
type Adapter interface {
	Sender
	// Resolve checks that the bot can see the chat. Used at startup.
	Resolve(ctx context.Context, chatID int64) (ChatInfo, error)
	// Identity returns the bot account name (for logs).
	Identity() string
}
