package config

import (
	"reflect"
	"strings"

	logx "guildwatch/pkg/logx"
)

// Change summarizes a config reload.
type Change struct {
	// Sections lists every top-level section that differs.
	Sections []string
	// RestartRequired lists changed sections that are only read at start.
	RestartRequired []string
	// Attrs are safe log fields (never tokens).
	Attrs []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, runtime bool) {
		ch.Sections = append(ch.Sections, section)
		if !runtime {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		mark("telegram", false)
		ch.Attrs = append(ch.Attrs,
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Bool("telegram.token_changed", strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Sources, newCfg.Sources) {
		mark("sources", false)
	}
	if !reflect.DeepEqual(oldCfg.Watch, newCfg.Watch) {
		mark("watch", false)
		ch.Attrs = append(ch.Attrs,
			logx.String("watch.levels_schedule", newCfg.Watch.Levels()),
			logx.String("watch.events_schedule", newCfg.Watch.Events()),
		)
	}
	if oldCfg.Messages != newCfg.Messages {
		mark("messages", false)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging", true)
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		mark("notifier", true)
		ch.Attrs = append(ch.Attrs, logx.Any("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", false)
	}
	if oldCfg.Ops != newCfg.Ops {
		mark("ops", true)
		ch.Attrs = append(ch.Attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.ListenAddr()),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}
	return ch
}
