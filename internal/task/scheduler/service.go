package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"guildwatch/internal/eventbus"
	logx "guildwatch/pkg/logx"
)

type Service struct {
	mu    sync.Mutex
	log   logx.Logger
	bus   eventbus.Bus
	clock clockwork.Clock
	loc   *time.Location
	tasks []*task

	cancel context.CancelFunc
	loops  sync.WaitGroup
	runs   sync.WaitGroup
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone: %w", err)
		}
		loc = l
	}
	return &Service{log: log, bus: bus, clock: clk, loc: loc}, nil
}

// AddTask registers a task. It must be called before Start.
func (s *Service) AddTask(name, schedule string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("task name required")
	}
	if job == nil {
		return errors.New("task job required")
	}
	sched, ps, err := Compile(schedule)
	if err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrStarted
	}
	for _, t := range s.tasks {
		if t.name == name {
			return fmt.Errorf("task %s already registered", name)
		}
	}
	s.tasks = append(s.tasks, &task{name: name, spec: ps.String(), sched: sched, timeout: timeout, job: job})
	s.log.Debug("task registered", logx.String("task", name), logx.String("spec", ps.String()), logx.Duration("timeout", timeout))
	return nil
}

// Start launches one trigger loop per task. The first firing is one period
// after Start, not immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrStarted
	}
	lctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, t := range s.tasks {
		s.loops.Add(1)
		go s.loop(lctx, t)
	}
	s.log.Info("scheduler started", logx.Int("tasks", len(s.tasks)), logx.String("tz", s.loc.String()))
	return nil
}

// Stop halts the trigger loops and cancels in-flight runs, then waits for
// them up to ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; abandoning in-flight runs")
		return ctx.Err()
	}
}

func (s *Service) loop(ctx context.Context, t *task) {
	defer s.loops.Done()

	at := s.clock.Now().In(s.loc)
	for {
		next := t.sched.Next(at)
		t.mu.Lock()
		t.next = next
		t.mu.Unlock()

		timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case fired := <-timer.Chan():
			at = fired.In(s.loc)
		}
		s.fire(ctx, t, at)
	}
}

// fire starts a run unless the previous one is still in flight.
func (s *Service) fire(ctx context.Context, t *task, at time.Time) {
	if !t.state.tryAcquire() {
		t.mu.Lock()
		t.skips++
		skips := t.skips
		t.mu.Unlock()
		s.log.Warn("tick skipped: previous run still in flight", logx.String("task", t.name), logx.Uint64("skips", skips))
		s.publish(eventbus.TypeTickSkipped, TickEvent{Task: t.name, At: at})
		return
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer t.state.release()
		_ = s.run(ctx, t, at)
	}()
}

func (s *Service) run(ctx context.Context, t *task, at time.Time) (err error) {
	rctx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		took := s.clock.Since(start)

		t.mu.Lock()
		t.runs++
		t.lastRun = start
		t.lastTook = took
		if err != nil {
			t.failures++
			t.lastErr = err.Error()
		} else {
			t.lastErr = ""
		}
		t.mu.Unlock()

		ev := TickEvent{Task: t.name, At: at, Took: took}
		if err != nil {
			ev.Error = err.Error()
			if !errors.Is(err, context.Canceled) {
				s.log.Warn("task failed", logx.String("task", t.name), logx.Duration("took", took), logx.Err(err))
			}
		}
		s.publish(eventbus.TypeTickCompleted, ev)
	}()
	return t.job(rctx)
}

// RunNow runs a task immediately under the same overlap rule as timed firings.
// It blocks until the run completes.
func (s *Service) RunNow(ctx context.Context, name string) error {
	t := s.find(name)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if !t.state.tryAcquire() {
		t.mu.Lock()
		t.skips++
		t.mu.Unlock()
		return ErrOverlapSkip
	}
	defer t.state.release()
	return s.run(ctx, t, s.clock.Now())
}

func (s *Service) find(name string) *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.name == name {
			return t
		}
	}
	return nil
}

func (s *Service) publish(typ string, ev TickEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// Snapshot returns per-task diagnostics sorted by name.
func (s *Service) Snapshot() []TaskInfo {
	s.mu.Lock()
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		out = append(out, TaskInfo{
			Name:     t.name,
			Spec:     t.spec,
			Timeout:  t.timeout,
			Running:  t.state.Running(),
			Runs:     t.runs,
			Skips:    t.skips,
			Failures: t.failures,
			LastErr:  t.lastErr,
			LastRun:  t.lastRun,
			LastTook: t.lastTook,
			Next:     t.next,
		})
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
