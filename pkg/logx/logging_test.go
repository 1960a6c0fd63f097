package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"guildwatch/internal/transport"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "watch"))

	log.Info("tick done", Int("changes", 2), Err(errors.New("boom")), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if m["comp"] != "watch" {
		t.Fatalf("comp = %v, want watch", m["comp"])
	}
	if m["changes"] != float64(2) {
		t.Fatalf("changes = %v, want 2", m["changes"])
	}
	if m["message"] != "tick done" {
		t.Fatalf("message = %v", m["message"])
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("expected caller field, got %v", m)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("Enabled(info) = true at warn level")
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	log.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop() should not be zero")
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","message":"fetch failed","task":"levels","err":"timeout"}` + "\n")
	got := formatTelegramJSON(line)
	want := "[WARN] fetch failed\n- err=timeout\n- task=levels"
	if got != want {
		t.Fatalf("formatTelegramJSON = %q, want %q", got, want)
	}

	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-JSON passthrough = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

type captureSender struct {
	mu    sync.Mutex
	texts []string
	to    []transport.ChatTarget
}

func (c *captureSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	c.to = append(c.to, to)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) snapshot() ([]string, []transport.ChatTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...), append([]transport.ChatTarget(nil), c.to...)
}

func TestTelegramSinkForwardsWarnings(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{Level: "debug", Console: false}, sender)
	defer svc.Close()

	svc.SetTelegramTarget(-42, 0)
	svc.Apply(Config{
		Level:    "debug",
		Console:  false,
		File:     FileConfig{Enabled: true, Path: t.TempDir() + "/test.log"},
		Telegram: TelegramConfig{Enabled: true, ThreadID: 9, MinLevel: "warn", RatePerSec: 100},
	})

	log.Info("routine")
	log.Warn("fetch failed", String("task", "events"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		texts, to := sender.snapshot()
		if len(texts) > 0 {
			if len(texts) != 1 || !strings.HasPrefix(texts[0], "[WARN] fetch failed") {
				t.Fatalf("forwarded = %q", texts)
			}
			if to[0].ChatID != -42 || to[0].ThreadID != 9 {
				t.Fatalf("target = %+v", to[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("warning was not forwarded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghijklmnop", 12, "abcdefghi..."},
		{"abcdef", 4, "abcd"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := clip(tt.in, tt.n); got != tt.want {
			t.Fatalf("clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
