package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildwatch/internal/config"
	"guildwatch/internal/eventbus"
	"guildwatch/internal/metrics"
	"guildwatch/internal/notifier"
	"guildwatch/internal/observability/ops"
	"guildwatch/internal/runtime/supervisor"
	"guildwatch/internal/source"
	"guildwatch/internal/storage"
	"guildwatch/internal/task/scheduler"
	"guildwatch/internal/transport"
	"guildwatch/internal/transport/telegram"
	"guildwatch/internal/watch"
	logx "guildwatch/pkg/logx"
	"guildwatch/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	adapter *telegram.Adapter
	chat    transport.ChatInfo

	notif   *notifier.Service
	sched   *scheduler.Service
	watch   *watch.Service
	metrics *metrics.Collector
	ops     *ops.Server
	sd      *systemd.Notifier

	sup *supervisor.Supervisor
}

// CheckConfig loads and validates the file without touching the network.
func CheckConfig(ctx context.Context, cfgPath string) (*config.Config, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(validate)
	return cfgm.Load(ctx)
}

// NewApp loads the config, verifies the bot token, resolves the destination
// chat and wires every component. Any failure here is fatal.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(validate)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegramConfig(cfg), bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink off so Apply does not warn before the
	// target is set.
	logCfg := loggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(cfg.Telegram.ChatID, cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	var undo closers
	undo.add(logSvc.Close)
	fail := func(err error) (*App, error) {
		_ = undo.close()
		return nil, err
	}

	var store storage.Store
	st, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		return fail(fmt.Errorf("open storage: %w", err))
	default:
		store = st
		undo.add(st.Close)
		log.Info("audit storage enabled", logx.String("driver", cfg.Storage.StorageDriver()))
	}

	chat, err := ad.Resolve(ctx, cfg.Telegram.ChatID)
	if err != nil {
		return fail(err)
	}
	log.Info("destination chat resolved",
		logx.Int64("chat_id", chat.ID),
		logx.String("title", chat.Title),
		logx.String("type", chat.Type),
	)

	bus := eventbus.New()
	notif := notifier.New(notifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")), bus, store)

	sched, err := scheduler.New(scheduler.Config{Timezone: cfg.Watch.Timezone}, log.With(logx.String("comp", "scheduler")), bus)
	if err != nil {
		return fail(err)
	}

	msgs, err := watch.ParseMessages(cfg.Messages.Online, cfg.Messages.LevelUp, cfg.Messages.Kill,
		watch.WithEscaper(watch.EscaperFor(cfg.Telegram.ParseMode)))
	if err != nil {
		return fail(err)
	}
	srcLog := log.With(logx.String("comp", "source"))
	roster := source.NewRosterClient(cfg.Sources.RosterURL, rosterLayout(cfg), sourceConfig(cfg), srcLog)
	feed := source.NewFeedClient(cfg.Sources.FeedURL, feedLayout(cfg), sourceConfig(cfg), srcLog)

	w := watch.New(watchConfig(cfg, ad.Identity()), roster, feed, notif, msgs, log.With(logx.String("comp", "watch")), bus)
	if err := w.Register(sched); err != nil {
		return fail(err)
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		chat:    chat,
		notif:   notif,
		sched:   sched,
		watch:   w,
		sd:      systemd.NewNotifier(log.With(logx.String("comp", "systemd"))),
	}
	a.metrics = metrics.New(log.With(logx.String("comp", "metrics")),
		metrics.WithStatus(w.Status),
		metrics.WithBusDropped(bus.Dropped),
		metrics.WithRuntimeCollectors(),
	)
	handlers := ops.Handlers{Health: a.health, Metrics: a.metrics.Handler()}
	if store != nil {
		handlers.Audit = func(ctx context.Context, limit int) (any, error) {
			return store.RecentAudit(ctx, limit)
		}
	}
	a.ops = ops.New(opsConfig(cfg), handlers, log)
	return a, nil
}

// closers releases what NewApp acquired when a later step fails.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

// close runs the closers newest first and joins their errors.
func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start captures the initial roster, announces the bot and then enables the
// timers. A failed required capture is returned as a fatal error.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.watch.Bootstrap(a.sup.Context()); err != nil {
		return err
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.ops.Apply(a.sup.Context(), opsConfig(a.cfgm.Get()))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		if err := a.sd.Watchdog(c); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
		return nil
	})

	a.sd.Ready()
	a.sd.Status(fmt.Sprintf("watching %d members", a.watch.Status().Members))
	a.log.Info("guildwatch started",
		logx.String("bot", a.adapter.Identity()),
		logx.Int64("chat_id", a.chat.ID),
		logx.Int("members", a.watch.Status().Members),
	)
	return nil
}

// reloadLoop applies the runtime sections of each published config. Core
// settings (sources, watch, telegram, messages, storage) need a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = cfg
		}
		// Coalesce bursts.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}

		ch := config.SummarizeChange(last, next)
		last = next
		if ch.Empty() {
			a.log.Debug("config reload received, but no effective changes detected")
			continue
		}
		if len(ch.RestartRequired) > 0 {
			a.log.Warn("config sections changed that only apply after restart",
				logx.String("sections", strings.Join(ch.RestartRequired, ",")))
		}
		a.apply(ctx, next, ch)

		fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
		a.log.Info("config reloaded", fields...)
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied, Data: ch.Sections})
	}
}

func (a *App) apply(ctx context.Context, cfg *config.Config, ch config.Change) {
	if ch.Has("logging") {
		a.logs.SetTelegramTarget(cfg.Telegram.ChatID, cfg.Logging.Telegram.ThreadID)
		a.logs.Apply(loggingConfig(cfg))
	}
	if ch.Has("notifier") {
		a.notif.Apply(notifierConfig(cfg))
	}
	if ch.Has("ops") {
		a.ops.Apply(ctx, opsConfig(cfg))
	}
}

// Health is the /healthz report.
type Health struct {
	Status     string               `json:"status"`
	Bot        string               `json:"bot"`
	Chat       transport.ChatInfo   `json:"chat"`
	Watch      watch.Status         `json:"watch"`
	Tasks      []scheduler.TaskInfo `json:"tasks"`
	Notifier   notifier.Stats       `json:"notifier"`
	Supervisor supervisor.Snapshot  `json:"supervisor"`
	Config     map[string]any       `json:"config,omitempty"`
}

func (a *App) health() (any, bool) {
	h := Health{
		Status:   "ok",
		Bot:      a.adapter.Identity(),
		Chat:     a.chat,
		Watch:    a.watch.Status(),
		Tasks:    a.sched.Snapshot(),
		Notifier: a.notif.Stats(),
	}
	ok := true
	if a.sup != nil {
		h.Supervisor = a.sup.Snapshot()
		if err := a.sup.Err(); err != nil {
			h.Status = "failing"
			ok = false
		}
	}
	if overrides := config.EnvOverrides(); len(overrides) > 0 {
		h.Config = map[string]any{"env_overrides": overrides}
	}
	return h, ok
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 3*time.Second, a.sched.Stop)
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
