package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"guildwatch/internal/eventbus"
	"guildwatch/internal/notifier"
	"guildwatch/internal/task/scheduler"
	logx "guildwatch/pkg/logx"
)

const (
	TaskLevels = "levels"
	TaskEvents = "events"
)

// Notification kinds passed to the Notifier.
const (
	KindOnline  = "online"
	KindLevelUp = "level_up"
	KindKill    = "kill"
)

var ErrEmptySnapshot = errors.New("fetched roster is empty")

type RosterSource interface {
	FetchRoster(ctx context.Context) (Snapshot, error)
}

type FeedSource interface {
	FetchFeed(ctx context.Context) ([]EventRecord, error)
}

// Notifier delivers text, best-effort. Transport failures are its own
// business; an error wrapping notifier.ErrNotSent tells the caller the text
// was never handed over and may be retried on a later tick.
type Notifier interface {
	Deliver(ctx context.Context, kind, text string) error
}

type Config struct {
	LevelsSchedule string
	EventsSchedule string
	// TickTimeout bounds one tick (fetch + notifications). 0 means no bound.
	TickTimeout   time.Duration
	DedupCapacity int
	// RequireInitialSnapshot makes a failed startup capture fatal.
	RequireInitialSnapshot bool
	SendOnline             bool
	// Bot is the bot identity shown in the online message.
	Bot string
}

// Service owns the roster snapshot and the dedup cache and runs the two ticks.
type Service struct {
	cfg    Config
	roster RosterSource
	feed   FeedSource
	notify Notifier
	msgs   *Messages
	log    logx.Logger
	bus    eventbus.Bus

	snap SnapshotStore
	seen *DedupCache

	phases map[string]*atomic.Int32

	levelChanges atomic.Uint64
	kills        atomic.Uint64

	mu     sync.Mutex
	lastOK map[string]time.Time
}

// New wires a Service. msgs and bus may be nil.
func New(cfg Config, roster RosterSource, feed FeedSource, n Notifier, msgs *Messages, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if msgs == nil {
		msgs = DefaultMessages()
	}
	if cfg.LevelsSchedule == "" {
		cfg.LevelsSchedule = "10s"
	}
	if cfg.EventsSchedule == "" {
		cfg.EventsSchedule = "30s"
	}
	return &Service{
		cfg:    cfg,
		roster: roster,
		feed:   feed,
		notify: n,
		msgs:   msgs,
		log:    log,
		bus:    bus,
		seen:   NewDedupCache(cfg.DedupCapacity),
		phases: map[string]*atomic.Int32{
			TaskLevels: new(atomic.Int32),
			TaskEvents: new(atomic.Int32),
		},
		lastOK: map[string]time.Time{},
	}
}

// Bootstrap captures the first roster and announces the bot. It runs once,
// before any timer is enabled, so the first levels tick has a baseline.
func (s *Service) Bootstrap(ctx context.Context) error {
	snap, err := s.roster.FetchRoster(ctx)
	switch {
	case err != nil && s.cfg.RequireInitialSnapshot:
		return fmt.Errorf("initial roster capture: %w", err)
	case err != nil:
		s.log.Warn("initial roster capture failed; starting with an empty roster", logx.Err(err))
	default:
		s.snap.Replace(snap)
		s.markOK(TaskLevels)
		s.log.Info("initial roster captured", logx.Int("members", len(snap)))
	}

	if s.cfg.SendOnline {
		_ = s.notify.Deliver(ctx, KindOnline, s.msgs.Online(OnlineData{Members: len(s.snap.Load()), Bot: s.cfg.Bot}))
	}
	return nil
}

// CheckLevels runs one levels tick: fetch, diff, notify, replace.
// On fetch failure the stored snapshot is kept and nothing is sent.
func (s *Service) CheckLevels(ctx context.Context) error {
	log := s.log.With(logx.String("task", TaskLevels), logx.String("tick", uuid.NewString()))
	defer s.setPhase(TaskLevels, PhaseIdle)

	s.setPhase(TaskLevels, PhaseFetching)
	cur, err := s.roster.FetchRoster(ctx)
	if err != nil {
		s.fetchFailed(log, TaskLevels, err)
		return fmt.Errorf("fetch roster: %w", err)
	}
	prev := s.snap.Load()
	if len(cur) == 0 && len(prev) > 0 {
		s.fetchFailed(log, TaskLevels, ErrEmptySnapshot)
		return ErrEmptySnapshot
	}

	s.setPhase(TaskLevels, PhaseProcessing)
	changes := Diff(prev, cur)

	s.setPhase(TaskLevels, PhaseNotifying)
	for i, c := range changes {
		if err := s.deliver(ctx, KindLevelUp, s.msgs.LevelUp(c)); err != nil {
			// Keep the old level for unsent changes so the next tick emits them again.
			s.snap.Replace(withLevelsOf(cur, prev, changes[i:]))
			log.Warn("levels tick stopped before all changes were sent",
				logx.Int("sent", i), logx.Int("pending", len(changes)-i), logx.Err(err))
			return err
		}
		s.levelChanges.Add(1)
		s.publish(eventbus.TypeLevelChanged, c)
	}
	s.snap.Replace(cur)
	s.markOK(TaskLevels)

	log.Debug("levels tick done", logx.Int("members", len(cur)), logx.Int("changes", len(changes)))
	return nil
}

// CheckEvents runs one events tick: fetch the feed, keep records whose killer
// is a member and that were not announced yet, notify each once.
func (s *Service) CheckEvents(ctx context.Context) error {
	log := s.log.With(logx.String("task", TaskEvents), logx.String("tick", uuid.NewString()))
	defer s.setPhase(TaskEvents, PhaseIdle)

	s.setPhase(TaskEvents, PhaseFetching)
	records, err := s.feed.FetchFeed(ctx)
	if err != nil {
		s.fetchFailed(log, TaskEvents, err)
		return fmt.Errorf("fetch feed: %w", err)
	}

	s.setPhase(TaskEvents, PhaseProcessing)
	actionable := Filter(records, s.snap.Load(), s.seen)

	s.setPhase(TaskEvents, PhaseNotifying)
	for i, r := range actionable {
		// Unsent records stay out of the cache so a later tick picks them up.
		if err := s.deliver(ctx, KindKill, s.msgs.Kill(r)); err != nil {
			log.Warn("events tick stopped before all kills were sent",
				logx.Int("sent", i), logx.Int("pending", len(actionable)-i), logx.Err(err))
			return err
		}
		s.seen.Add(r.ID())
		s.kills.Add(1)
		s.publish(eventbus.TypeKillObserved, r)
	}
	s.markOK(TaskEvents)

	log.Debug("events tick done", logx.Int("records", len(records)), logx.Int("notified", len(actionable)))
	return nil
}

// deliver sends one notification. It returns an error only when the text was
// not handed to the transport; other delivery failures are swallowed.
func (s *Service) deliver(ctx context.Context, kind, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.notify.Deliver(ctx, kind, text); errors.Is(err, notifier.ErrNotSent) {
		return err
	}
	return nil
}

// withLevelsOf returns a copy of cur where every name in pending carries its
// level from prev.
func withLevelsOf(cur, prev Snapshot, pending []LevelChange) Snapshot {
	out := make(Snapshot, len(cur))
	for name, lvl := range cur {
		out[name] = lvl
	}
	for _, c := range pending {
		out[c.Name] = prev[c.Name]
	}
	return out
}

// Register adds both ticks to sched using the configured schedules.
func (s *Service) Register(sched *scheduler.Service) error {
	if err := sched.AddTask(TaskLevels, s.cfg.LevelsSchedule, s.cfg.TickTimeout, s.CheckLevels); err != nil {
		return err
	}
	return sched.AddTask(TaskEvents, s.cfg.EventsSchedule, s.cfg.TickTimeout, s.CheckEvents)
}

// Phase reports where a task currently is in its tick.
func (s *Service) Phase(task string) Phase {
	p, ok := s.phases[task]
	if !ok {
		return PhaseIdle
	}
	return Phase(p.Load())
}

func (s *Service) setPhase(task string, p Phase) {
	s.phases[task].Store(int32(p))
}

func (s *Service) fetchFailed(log logx.Logger, task string, err error) {
	log.Warn("fetch failed; keeping previous state", logx.Err(err))
	s.publish(eventbus.TypeFetchFailed, FetchFailure{Task: task, Error: err.Error()})
}

func (s *Service) markOK(task string) {
	s.mu.Lock()
	s.lastOK[task] = time.Now()
	s.mu.Unlock()
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Roster returns the current snapshot.
func (s *Service) Roster() Snapshot { return s.snap.Load() }

// Seen returns the dedup cache (diagnostics).
func (s *Service) Seen() *DedupCache { return s.seen }

// FetchFailure is the payload of watch.fetch_failed events.
type FetchFailure struct {
	Task  string `json:"task"`
	Error string `json:"error"`
}

type Status struct {
	Members      int                  `json:"members"`
	DedupLen     int                  `json:"dedup_len"`
	DedupCap     int                  `json:"dedup_cap"`
	LevelChanges uint64               `json:"level_changes"`
	Kills        uint64               `json:"kills"`
	Phases       map[string]string    `json:"phases"`
	LastOK       map[string]time.Time `json:"last_ok"`
}

func (s *Service) Status() Status {
	st := Status{
		Members:      len(s.snap.Load()),
		DedupLen:     s.seen.Len(),
		DedupCap:     s.seen.Cap(),
		LevelChanges: s.levelChanges.Load(),
		Kills:        s.kills.Load(),
		Phases:       map[string]string{},
		LastOK:       map[string]time.Time{},
	}
	for task := range s.phases {
		st.Phases[task] = s.Phase(task).String()
	}
	s.mu.Lock()
	for k, v := range s.lastOK {
		st.LastOK[k] = v
	}
	s.mu.Unlock()
	return st
}
