package notifier

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"guildwatch/internal/eventbus"
	"guildwatch/internal/storage"
	"guildwatch/internal/transport"
	logx "guildwatch/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
	opts []transport.SendOptions
	to   []transport.ChatTarget
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	if opt != nil {
		f.opts = append(f.opts, *opt)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func testConfig() Config {
	return Config{
		Target:     transport.ChatTarget{ChatID: -100, ThreadID: 7},
		Options:    transport.SendOptions{DisablePreview: true},
		RatePerSec: 1000,
		Burst:      1000,
	}
}

func TestSendDeliversAndRecords(t *testing.T) {
	fs := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	n := New(testConfig(), fs, logx.Nop(), bus, st)
	n.Send(context.Background(), "kill", "A killed X")

	if len(fs.sent) != 1 || fs.sent[0] != "A killed X" {
		t.Fatalf("sent = %v", fs.sent)
	}
	if fs.to[0].ThreadID != 7 || !fs.opts[0].DisablePreview {
		t.Fatalf("target/options not forwarded: %+v %+v", fs.to[0], fs.opts[0])
	}
	if got := n.Stats(); got.Sent != 1 || got.Failed != 0 {
		t.Fatalf("stats = %+v", got)
	}
	if h := n.History(); len(h) != 1 || h[0].Kind != "kill" {
		t.Fatalf("history = %+v", h)
	}

	select {
	case e := <-events:
		if e.Type != eventbus.TypeNotifySent {
			t.Fatalf("event type = %q", e.Type)
		}
	default:
		t.Fatal("no bus event")
	}

	audit, err := st.RecentAudit(context.Background(), 10)
	if err != nil || len(audit) != 1 || !audit[0].OK || audit[0].Kind != "kill" {
		t.Fatalf("audit = %+v, %v", audit, err)
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	fs := &fakeSender{err: errors.New("chat not found")}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	n := New(testConfig(), fs, logx.Nop(), bus, nil)
	n.Send(context.Background(), "level_up", "hello")

	if err := n.Deliver(context.Background(), "level_up", "hello"); err == nil {
		t.Fatal("Deliver should surface the error")
	}
	if got := n.Stats(); got.Failed != 2 || got.Sent != 0 {
		t.Fatalf("stats = %+v", got)
	}
	if len(n.History()) != 0 {
		t.Fatal("failed sends must not enter history")
	}
	e := <-events
	if e.Type != eventbus.TypeNotifyFailed || e.Data.(Event).Error != "chat not found" {
		t.Fatalf("event = %+v", e)
	}
}

func TestDeliverEmptyAndCanceled(t *testing.T) {
	fs := &fakeSender{}
	n := New(testConfig(), fs, logx.Nop(), nil, nil)

	if err := n.Deliver(context.Background(), "x", "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Deliver(ctx, "x", "hi"); !errors.Is(err, ErrNotSent) || !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled delivery err = %v", err)
	}
	if len(fs.sent) != 0 {
		t.Fatalf("sent = %v", fs.sent)
	}
}

func TestRateLimitBoundedBySendTimeout(t *testing.T) {
	fs := &fakeSender{}
	cfg := testConfig()
	cfg.RatePerSec = 0.001
	cfg.Burst = 1
	cfg.SendTimeout = 50 * time.Millisecond
	n := New(cfg, fs, logx.Nop(), nil, nil)

	if err := n.Deliver(context.Background(), "x", "first"); err != nil {
		t.Fatalf("first: %v", err)
	}
	start := time.Now()
	err := n.Deliver(context.Background(), "x", "second")
	if !errors.Is(err, ErrNotSent) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second send err = %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("rate limit wait was not bounded")
	}
	if len(fs.sent) != 1 {
		t.Fatalf("sent = %v", fs.sent)
	}
	if got := n.Stats(); got.Sent != 1 || got.Failed != 0 || got.Deferred != 1 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestRateLimitDeferralHonorsCallerDeadline(t *testing.T) {
	tests := []struct {
		name     string
		deadline time.Duration
		wantSent int
	}{
		{"wait fits", 2 * time.Second, 2},
		{"wait exceeds", 20 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSender{}
			cfg := testConfig()
			cfg.RatePerSec = 5
			cfg.Burst = 1
			n := New(cfg, fs, logx.Nop(), nil, nil)

			ctx, cancel := context.WithTimeout(context.Background(), tt.deadline)
			defer cancel()
			for _, text := range []string{"one", "two"} {
				err := n.Deliver(ctx, "kill", text)
				if err != nil && !errors.Is(err, ErrNotSent) {
					t.Fatalf("deliver %q: %v", text, err)
				}
			}
			if len(fs.sent) != tt.wantSent {
				t.Fatalf("sent = %v, want %d", fs.sent, tt.wantSent)
			}
		})
	}
}

func TestDeferredSendGivesTokenBack(t *testing.T) {
	fs := &fakeSender{}
	cfg := testConfig()
	cfg.RatePerSec = 5
	cfg.Burst = 1
	n := New(cfg, fs, logx.Nop(), nil, nil)

	if err := n.Deliver(context.Background(), "x", "first"); err != nil {
		t.Fatal(err)
	}
	short, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if err := n.Deliver(short, "x", "deferred"); !errors.Is(err, ErrNotSent) {
		t.Fatalf("err = %v", err)
	}
	// A canceled reservation must not push the next send further out.
	start := time.Now()
	if err := n.Deliver(context.Background(), "x", "second"); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(start); took > 300*time.Millisecond {
		t.Fatalf("second send waited %s", took)
	}
}

func TestApplyKeepsTarget(t *testing.T) {
	fs := &fakeSender{}
	n := New(testConfig(), fs, logx.Nop(), nil, nil)
	n.Apply(Config{Target: transport.ChatTarget{ChatID: 1}, RatePerSec: 5})

	n.Send(context.Background(), "x", "hi")
	if fs.to[0].ChatID != -100 {
		t.Fatalf("target changed on Apply: %+v", fs.to[0])
	}
}
