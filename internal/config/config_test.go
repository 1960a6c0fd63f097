package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJSON = `{
  "telegram": {"token": "123:abc", "chat_id": -100},
  "sources": {
    "roster_url": "https://example.org/guild",
    "feed_url": "https://example.org/deaths"
  },
  "watch": {"dedup_capacity": 50},
  "logging": {"level": "info", "console": true}
}`

const validYAML = `
telegram:
  token: "123:abc"
  chat_id: -100
sources:
  roster_url: https://example.org/guild
  feed_url: https://example.org/deaths
  roster:
    name_column: 0
    level_column: 3
watch:
  levels_schedule: "@every 15s"
logging:
  level: debug
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseJSONAndYAML(t *testing.T) {
	cfg, err := NewConfigManager(writeFile(t, "c.json", validJSON)).Parse()
	if err != nil {
		t.Fatalf("json Parse: %v", err)
	}
	if cfg.Telegram.ChatID != -100 || cfg.Watch.Capacity() != 50 {
		t.Fatalf("json cfg = %+v", cfg)
	}

	cfg, err = NewConfigManager(writeFile(t, "c.yaml", validYAML)).Parse()
	if err != nil {
		t.Fatalf("yaml Parse: %v", err)
	}
	sel, name, level := cfg.Sources.Roster.Columns()
	if sel != DefaultRosterRowSelector || name != 0 || level != 3 {
		t.Fatalf("roster columns = %q %d %d", sel, name, level)
	}
	if cfg.Watch.Levels() != "@every 15s" || cfg.Watch.Events() != DefaultEventsSchedule {
		t.Fatalf("schedules = %q %q", cfg.Watch.Levels(), cfg.Watch.Events())
	}
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	tests := map[string]string{
		"unknown":  `{"telegram": {"token": "x", "chat_id": 1, "owner_user_ids": []}}`,
		"trailing": `{"telegram": {}} {}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode("c.json", []byte(body)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("GUILDWATCH_TELEGRAM__TOKEN", "999:env")
	t.Setenv("GUILDWATCH_TELEGRAM__CHAT_ID", "-4242")
	t.Setenv("GUILDWATCH_SOURCES__FEED_URL", "https://mirror.example.org/deaths")
	t.Setenv("GUILDWATCH_WATCH__REQUIRE_INITIAL_SNAPSHOT", "false")

	cfg, err := NewConfigManager(writeFile(t, "c.json", validJSON)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "999:env" || cfg.Telegram.ChatID != -4242 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Sources.FeedURL != "https://mirror.example.org/deaths" {
		t.Fatalf("feed_url = %q", cfg.Sources.FeedURL)
	}
	if cfg.Sources.RosterURL != "https://example.org/guild" {
		t.Fatalf("roster_url should keep file value, got %q", cfg.Sources.RosterURL)
	}
	if cfg.Watch.InitialSnapshotRequired() {
		t.Fatal("require_initial_snapshot should be false from env")
	}
	if cfg.Watch.Capacity() != 50 {
		t.Fatalf("unrelated fields must survive overlay, capacity = %d", cfg.Watch.Capacity())
	}

	found := false
	for _, k := range EnvOverrides() {
		if k == "telegram.token" {
			found = true
		}
	}
	if !found {
		t.Fatalf("EnvOverrides missing telegram.token: %v", EnvOverrides())
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("GUILDWATCH_SOURCES__ROSTER_URL"); got != "sources.roster_url" {
		t.Fatalf("envKey = %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Decode("c.json", []byte(validJSON))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"bad url", func(c *Config) { c.Sources.RosterURL = "ftp://x" }, "sources.roster_url"},
		{"bad duration", func(c *Config) { c.Watch.TickTimeout = "soon" }, "watch.tick_timeout"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"same columns", func(c *Config) {
			one := 1
			c.Sources.Roster.LevelColumn = &one
		}, "must differ"},
		{"ops public without token", func(c *Config) {
			c.Ops.Enabled = true
			c.Ops.Addr = "0.0.0.0:9108"
		}, "not loopback"},
		{"ops public with token", func(c *Config) {
			c.Ops.Enabled = true
			c.Ops.Addr = "0.0.0.0:9108"
			c.Ops.Token = "s3cret"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want ErrInvalid mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	path := writeFile(t, "c.json", validJSON)
	m := NewConfigManager(path)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	changed, err := m.Reload(context.Background())
	if err != nil || changed {
		t.Fatalf("unchanged reload = %v, %v", changed, err)
	}

	updated := strings.Replace(validJSON, `"level": "info"`, `"level": "debug"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	changed, err = m.Reload(context.Background())
	if err != nil || !changed {
		t.Fatalf("changed reload = %v, %v", changed, err)
	}
	got := <-sub
	if got.Logging.Level != "debug" || m.Get().Logging.Level != "debug" {
		t.Fatalf("published level = %q", got.Logging.Level)
	}
}

func TestReloadRejectedByValidator(t *testing.T) {
	path := writeFile(t, "c.json", validJSON)
	m := NewConfigManager(path)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Logging.Level == "debug" {
			return errors.New("no debug in prod")
		}
		return nil
	})
	updated := strings.Replace(validJSON, `"level": "info"`, `"level": "debug"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(context.Background()); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if m.Get().Logging.Level != "info" {
		t.Fatal("rejected config must not be committed")
	}
}

func TestSummarizeChange(t *testing.T) {
	a, _ := Decode("c.json", []byte(validJSON))
	b, _ := Decode("c.json", []byte(validJSON))
	b.Logging.Level = "debug"
	b.Watch.DedupCapacity = 10

	ch := SummarizeChange(a, b)
	if !ch.Has("logging") || !ch.Has("watch") || ch.Has("telegram") {
		t.Fatalf("sections = %v", ch.Sections)
	}
	if len(ch.RestartRequired) != 1 || ch.RestartRequired[0] != "watch" {
		t.Fatalf("restart required = %v", ch.RestartRequired)
	}
	if !SummarizeChange(a, a).Empty() {
		t.Fatal("identical configs should produce no change")
	}
}
