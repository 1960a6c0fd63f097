package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"guildwatch/internal/eventbus"
	"guildwatch/internal/storage"
	"guildwatch/internal/transport"
	logx "guildwatch/pkg/logx"
)

const (
	defaultRatePerSec  = 1.0
	defaultSendTimeout = 10 * time.Second
	defaultHistorySize = 100
	auditTimeout       = 2 * time.Second
)

var ErrEmptyMessage = errors.New("empty message")

// ErrNotSent wraps failures where the text never reached the transport: the
// context ended first, or the rate limit wait would outlast its deadline.
// Callers may retry such texts later without risking a duplicate.
var ErrNotSent = errors.New("notification not sent")

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender transport.Sender
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store

	sent     atomic.Uint64
	failed   atomic.Uint64
	deferred atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds the notifier. bus and store may be nil.
func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus, store: store}
	s.applyLocked(cfg)
	return s
}

// Apply swaps delivery settings (hot reload). The destination is not reloadable.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.Target = s.cfg.Target
	s.applyLocked(cfg)
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.Burst)
}

// Send delivers text, best-effort. Failures are logged and counted, never returned.
func (s *Service) Send(ctx context.Context, kind, text string) {
	_ = s.Deliver(ctx, kind, text)
}

// Deliver is Send with the outcome exposed. An error wrapping ErrNotSent means
// the transport was never called.
func (s *Service) Deliver(ctx context.Context, kind, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	if err := waitTurn(callCtx, lim); err != nil {
		s.deferred.Add(1)
		s.log.Debug("notify deferred", logx.String("kind", kind), logx.Err(err))
		return err
	}
	opt := cfg.Options
	ref, err := s.sender.SendText(callCtx, cfg.Target, text, &opt)
	took := time.Since(start)

	ev := Event{Kind: kind, ChatID: cfg.Target.ChatID, ThreadID: cfg.Target.ThreadID, Took: took}
	if err != nil {
		s.failed.Add(1)
		ev.Error = err.Error()
		s.log.Warn("notify failed",
			logx.String("kind", kind),
			logx.Duration("took", took),
			logx.Err(err),
		)
		s.publish(eventbus.TypeNotifyFailed, ev)
	} else {
		s.sent.Add(1)
		s.appendHistory(cfg.HistorySize, kind, text)
		s.log.Debug("notify sent", logx.String("kind", kind), logx.Int("message_id", ref.MessageID))
		s.publish(eventbus.TypeNotifySent, ev)
	}
	s.audit(ctx, storage.AuditEntry{
		At:        start,
		Kind:      kind,
		ChatID:    cfg.Target.ChatID,
		ThreadID:  cfg.Target.ThreadID,
		MessageID: ref.MessageID,
		Text:      text,
		OK:        err == nil,
		Error:     ev.Error,
		TookMS:    took.Milliseconds(),
	})
	return err
}

// waitTurn takes one limiter token. It gives the token back and fails with
// ErrNotSent when ctx ends first or its deadline is closer than the wait.
func waitTurn(ctx context.Context, lim *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSent, err)
	}
	r := lim.Reserve()
	if !r.OK() {
		return fmt.Errorf("%w: rate limit burst is zero", ErrNotSent)
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < delay {
		r.Cancel()
		return fmt.Errorf("%w: rate limit wait %s exceeds deadline: %w", ErrNotSent, delay.Round(time.Millisecond), context.DeadlineExceeded)
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return fmt.Errorf("%w: %w", ErrNotSent, ctx.Err())
	}
}

func (s *Service) publish(typ string, ev Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (s *Service) audit(ctx context.Context, e storage.AuditEntry) {
	if s.store == nil {
		return
	}
	// Audit even when the tick was canceled mid-send.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.store.AppendAudit(actx, e); err != nil {
		s.log.Debug("audit append failed", logx.Err(err))
	}
}

func (s *Service) appendHistory(limit int, kind, text string) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Kind: kind, Text: text})
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}

// History returns delivered messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load(), Deferred: s.deferred.Load()}
}
