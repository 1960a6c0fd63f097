package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"guildwatch/internal/transport"
)

const (
	telegramQueueSize   = 256
	telegramSendTimeout = 10 * time.Second
	telegramMaxText     = 3500
	telegramMaxValue    = 600
)

// telegramSink is a zerolog.LevelWriter that forwards selected lines to a chat.
// Writes never block: lines are dropped when rate limited or when the queue
// is full.
type telegramSink struct {
	sender transport.Sender
	queue  chan telegramLine

	mu       sync.Mutex
	to       transport.ChatTarget
	minLevel Level
	limiter  *rate.Limiter

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type telegramLine struct {
	to   transport.ChatTarget
	text string
}

func newTelegramSink(sender transport.Sender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan telegramLine, telegramQueueSize),
		minLevel: LevelWarn,
		limiter:  rate.NewLimiter(1, 1),
	}
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.to.ChatID = chatID
	if threadID != 0 {
		t.to.ThreadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) hasTarget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.to.ChatID != 0
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := max(cfg.RatePerSec, 1)
	t.mu.Lock()
	t.minLevel = parseLevel(cfg.MinLevel, LevelWarn)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		t.to.ThreadID = cfg.ThreadID
	}
	t.mu.Unlock()

	if cfg.Enabled {
		t.startOnce.Do(t.start)
	}
}

func (t *telegramSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ln := <-t.queue:
				sctx, scancel := context.WithTimeout(ctx, telegramSendTimeout)
				_, _ = t.sender.SendText(sctx, ln.to, ln.text, &transport.SendOptions{DisablePreview: true})
				scancel()
			}
		}
	}()
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *telegramSink) Write(p []byte) (int, error) { return t.WriteLevel(LevelInfo, p) }

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, minLevel, lim := t.to, t.minLevel, t.limiter
	t.mu.Unlock()

	if to.ChatID == 0 || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatTelegramJSON(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case t.queue <- telegramLine{to: to, text: text}:
	default:
	}
	return len(p), nil
}

// formatTelegramJSON turns one JSON log line into "[LEVEL] message" followed
// by sorted "- key=value" lines. Non-JSON input is passed through trimmed.
func formatTelegramJSON(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return clip(raw, telegramMaxText)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	delete(m, "time")
	delete(m, "level")
	delete(m, "message")
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(m[k]), telegramMaxValue))
	}
	return clip(b.String(), telegramMaxText)
}

func clip(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	default:
		return s[:n-3] + "..."
	}
}
