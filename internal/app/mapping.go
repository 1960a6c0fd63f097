package app

import (
	"context"
	"fmt"
	"time"

	"guildwatch/internal/config"
	"guildwatch/internal/notifier"
	"guildwatch/internal/observability/ops"
	"guildwatch/internal/source"
	"guildwatch/internal/storage"
	"guildwatch/internal/task/scheduler"
	"guildwatch/internal/transport"
	"guildwatch/internal/transport/telegram"
	"guildwatch/internal/watch"
	logx "guildwatch/pkg/logx"
)

// validate runs the checks that need other packages: schedules and templates.
// It backs both startup load and hot reload.
func validate(_ context.Context, cfg *config.Config) error {
	if _, _, err := scheduler.Compile(cfg.Watch.Levels()); err != nil {
		return fmt.Errorf("watch.levels_schedule: %w", err)
	}
	if _, _, err := scheduler.Compile(cfg.Watch.Events()); err != nil {
		return fmt.Errorf("watch.events_schedule: %w", err)
	}
	if _, err := watch.ParseMessages(cfg.Messages.Online, cfg.Messages.LevelUp, cfg.Messages.Kill); err != nil {
		return err
	}
	return nil
}

func telegramConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:   cfg.Telegram.Token,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: config.MustDuration(cfg.Telegram.Timeout, 15*time.Second),
	}
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Target: transport.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		Options: transport.SendOptions{
			ParseMode:      cfg.Telegram.ParseMode,
			DisablePreview: cfg.Telegram.DisablePreview,
			Silent:         cfg.Telegram.Silent,
		},
		RatePerSec:  cfg.Notifier.RatePerSec,
		Burst:       cfg.Notifier.Burst,
		SendTimeout: config.MustDuration(cfg.Notifier.SendTimeout, 0),
		HistorySize: cfg.Notifier.HistorySize,
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.StorageDriver(),
		Path:        cfg.Storage.StoragePath(),
		BusyTimeout: config.MustDuration(cfg.Storage.BusyTimeout, 0),
	}
}

func opsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled:              cfg.Ops.Enabled,
		Addr:                 cfg.Ops.ListenAddr(),
		Token:                cfg.Ops.Token,
		AllowInsecure:        cfg.Ops.AllowInsecure,
		Pprof:                cfg.Ops.Pprof,
		ReadTimeout:          config.MustDuration(cfg.Ops.ReadTimeout, 10*time.Second),
		WriteTimeout:         config.MustDuration(cfg.Ops.WriteTimeout, 60*time.Second),
		IdleTimeout:          config.MustDuration(cfg.Ops.IdleTimeout, 60*time.Second),
		MutexProfileFraction: cfg.Ops.MutexProfileFraction,
		BlockProfileRate:     cfg.Ops.BlockProfileRate,
	}
}

func sourceConfig(cfg *config.Config) source.Config {
	return source.Config{
		UserAgent: cfg.Sources.UserAgent,
		Timeout:   config.MustDuration(cfg.Sources.Timeout, 15*time.Second),
	}
}

func rosterLayout(cfg *config.Config) source.RosterLayout {
	sel, name, level := cfg.Sources.Roster.Columns()
	return source.RosterLayout{RowSelector: sel, NameColumn: name, LevelColumn: level}
}

func feedLayout(cfg *config.Config) source.FeedLayout {
	c := cfg.Sources.Feed.Columns()
	return source.FeedLayout{
		RowSelector:     c.RowSelector,
		SkipHeader:      c.SkipHeader,
		TargetColumn:    c.Target,
		TimestampColumn: c.Timestamp,
		ActorColumn:     c.Actor,
		NameSeparator:   c.NameSeparator,
	}
}

func watchConfig(cfg *config.Config, bot string) watch.Config {
	return watch.Config{
		LevelsSchedule:         cfg.Watch.Levels(),
		EventsSchedule:         cfg.Watch.Events(),
		TickTimeout:            config.MustDuration(cfg.Watch.TickTimeout, 0),
		DedupCapacity:          cfg.Watch.Capacity(),
		RequireInitialSnapshot: cfg.Watch.InitialSnapshotRequired(),
		SendOnline:             cfg.Watch.OnlineMessage(),
		Bot:                    bot,
	}
}
