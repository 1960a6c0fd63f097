package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"guildwatch/internal/eventbus"
	"guildwatch/internal/notifier"
	"guildwatch/internal/task/scheduler"
	"guildwatch/internal/watch"
	logx "guildwatch/pkg/logx"
)

// value sums every sample of the named family whose labels include want.
func value(t *testing.T, c *Collector, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := c.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for k, v := range want {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
					}
				}
				if !found {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return sum
}

func TestObserve(t *testing.T) {
	c := New(logx.Nop(),
		WithStatus(func() watch.Status { return watch.Status{Members: 12, DedupLen: 3} }),
		WithBusDropped(func() uint64 { return 4 }),
	)

	events := []eventbus.Event{
		{Type: eventbus.TypeLevelChanged, Data: watch.LevelChange{Name: "A", From: 1, To: 2}},
		{Type: eventbus.TypeLevelChanged, Data: watch.LevelChange{Name: "B", From: 1, To: 2}},
		{Type: eventbus.TypeKillObserved, Data: watch.EventRecord{Actor: "A"}},
		{Type: eventbus.TypeFetchFailed, Data: watch.FetchFailure{Task: watch.TaskEvents, Error: "503"}},
		{Type: eventbus.TypeTickCompleted, Data: scheduler.TickEvent{Task: watch.TaskLevels, Took: time.Second}},
		{Type: eventbus.TypeTickCompleted, Data: scheduler.TickEvent{Task: watch.TaskEvents, Error: "boom"}},
		{Type: eventbus.TypeTickSkipped, Data: scheduler.TickEvent{Task: watch.TaskLevels}},
		{Type: eventbus.TypeNotifySent, Data: notifier.Event{Kind: watch.KindKill}},
		{Type: eventbus.TypeNotifyFailed, Data: notifier.Event{Kind: watch.KindKill, Error: "x"}},
		{Type: "unknown", Data: 42},
	}
	for _, e := range events {
		c.Observe(e)
	}

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"guildwatch_level_changes_total", nil, 2},
		{"guildwatch_kills_total", nil, 1},
		{"guildwatch_fetch_failures_total", map[string]string{"task": "events"}, 1},
		{"guildwatch_scheduler_ticks_total", map[string]string{"result": "ok"}, 1},
		{"guildwatch_scheduler_ticks_total", map[string]string{"task": "events", "result": "error"}, 1},
		{"guildwatch_scheduler_ticks_skipped_total", map[string]string{"task": "levels"}, 1},
		{"guildwatch_notifier_messages_total", map[string]string{"kind": "kill", "result": "sent"}, 1},
		{"guildwatch_notifier_messages_total", map[string]string{"result": "failed"}, 1},
		{"guildwatch_notifier_send_duration_seconds", nil, 2},
		{"guildwatch_roster_members", nil, 12},
		{"guildwatch_dedup_entries", nil, 3},
		{"guildwatch_eventbus_dropped_total", nil, 4},
	}
	for _, tt := range tests {
		if got := value(t, c, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestRunConsumesBus(t *testing.T) {
	bus := eventbus.New()
	c := New(logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, bus) }()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("collector never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	bus.Publish(eventbus.Event{Type: eventbus.TypeKillObserved})

	for value(t, c, "guildwatch_kills_total", nil) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("event not observed")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestHandler(t *testing.T) {
	c := New(logx.Nop(), WithRuntimeCollectors())
	c.Observe(eventbus.Event{Type: eventbus.TypeKillObserved})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"guildwatch_kills_total 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("body missing %q", want)
		}
	}
}
