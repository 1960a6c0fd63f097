package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks static constraints. Schedules and templates are checked by
// their owning packages through ConfigManager.SetValidator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token is required (or set GUILDWATCH_TELEGRAM__TOKEN)")
	}
	if cfg.Telegram.ChatID == 0 {
		add("telegram.chat_id is required")
	}
	if cfg.Telegram.ThreadID < 0 {
		add("telegram.thread_id must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Telegram.ParseMode)) {
	case "", "html", "markdown", "markdownv2":
	default:
		add("telegram.parse_mode %q is not supported", cfg.Telegram.ParseMode)
	}

	checkURL := func(path, raw string) {
		if strings.TrimSpace(raw) == "" {
			add("%s is required", path)
			return
		}
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("%s: %q is not an http(s) URL", path, raw)
		}
	}
	checkURL("sources.roster_url", cfg.Sources.RosterURL)
	checkURL("sources.feed_url", cfg.Sources.FeedURL)

	_, name, level := cfg.Sources.Roster.Columns()
	if name < 0 || level < 0 {
		add("sources.roster: columns must be >= 0")
	} else if name == level {
		add("sources.roster: name_column and level_column must differ")
	}
	fc := cfg.Sources.Feed.Columns()
	if fc.Target < 0 || fc.Timestamp < 0 || fc.Actor < 0 {
		add("sources.feed: columns must be >= 0")
	}

	if cfg.Watch.DedupCapacity < 0 {
		add("watch.dedup_capacity must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Watch.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("watch.timezone: %v", err)
		}
	}

	for path, raw := range map[string]string{
		"telegram.timeout":      cfg.Telegram.Timeout,
		"sources.timeout":       cfg.Sources.Timeout,
		"watch.tick_timeout":    cfg.Watch.TickTimeout,
		"notifier.send_timeout": cfg.Notifier.SendTimeout,
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
		"ops.read_timeout":      cfg.Ops.ReadTimeout,
		"ops.write_timeout":     cfg.Ops.WriteTimeout,
		"ops.idle_timeout":      cfg.Ops.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Notifier.RatePerSec < 0 || cfg.Notifier.Burst < 0 || cfg.Notifier.HistorySize < 0 {
		add("notifier: rate_per_sec, burst and history_size must be >= 0")
	}

	switch cfg.Storage.StorageDriver() {
	case "", "file", "sqlite":
	default:
		add("storage.driver %q is not supported (file, sqlite, none)", cfg.Storage.Driver)
	}

	if cfg.Ops.Enabled {
		addr := cfg.Ops.ListenAddr()
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			add("ops.addr: %v", err)
		} else if !isLoopbackHost(host) && strings.TrimSpace(cfg.Ops.Token) == "" && !cfg.Ops.AllowInsecure {
			add("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", addr)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not supported", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add("logging.file.path is required when logging.file.enabled")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
