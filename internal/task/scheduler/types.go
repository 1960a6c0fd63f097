package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

var (
	ErrOverlapSkip = errors.New("task skipped: previous run still in flight")
	ErrUnknownTask = errors.New("unknown task")
	ErrStarted     = errors.New("scheduler already started")
)

// Job is the unit of work a task runs.
type Job func(ctx context.Context) error

// Config controls the scheduler.
type Config struct {
	// Timezone is an IANA name used to evaluate cron expressions. Empty means local.
	Timezone string
	// Clock drives all timers. Nil means the real clock.
	Clock clockwork.Clock
}

// RunState tracks whether a task is in flight.
type RunState struct {
	mu       sync.Mutex
	inflight bool
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *RunState) release() {
	s.mu.Lock()
	s.inflight = false
	s.mu.Unlock()
}

func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

type task struct {
	name    string
	spec    string
	sched   cron.Schedule
	timeout time.Duration
	job     Job
	state   RunState

	mu       sync.Mutex
	runs     uint64
	skips    uint64
	failures uint64
	lastErr  string
	lastRun  time.Time
	lastTook time.Duration
	next     time.Time
}

// TaskInfo is a diagnostic view of one task.
type TaskInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout"`
	Running  bool          `json:"running"`
	Runs     uint64        `json:"runs"`
	Skips    uint64        `json:"skips"`
	Failures uint64        `json:"failures"`
	LastErr  string        `json:"last_err,omitempty"`
	LastRun  time.Time     `json:"last_run,omitempty"`
	LastTook time.Duration `json:"last_took"`
	Next     time.Time     `json:"next,omitempty"`
}

// TickEvent is the payload of scheduler.* bus events.
type TickEvent struct {
	Task  string        `json:"task"`
	At    time.Time     `json:"at"`
	Took  time.Duration `json:"took,omitempty"`
	Error string        `json:"error,omitempty"`
}
