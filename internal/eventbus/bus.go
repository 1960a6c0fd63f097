// Package eventbus is the in-process fanout used to decouple the watcher
// from metrics, audit and logging consumers.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by guildwatch components.
const (
	TypeLevelChanged  = "watch.level_changed"
	TypeKillObserved  = "watch.kill_observed"
	TypeFetchFailed   = "watch.fetch_failed"
	TypeTickCompleted = "scheduler.tick_completed"
	TypeTickSkipped   = "scheduler.tick_skipped"
	TypeNotifySent    = "notifier.sent"
	TypeNotifyFailed  = "notifier.failed"
	TypeConfigApplied = "config.applied"
)

// Event is a lightweight in-memory signal.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a full buffer drops the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends are non-blocking, so holding the read lock keeps unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Dropped reports how many deliveries were lost to full subscriber buffers.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

// Subscribers reports the current subscriber count.
func (b *MemBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
