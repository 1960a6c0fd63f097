// Package metrics turns bus events into Prometheus series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"guildwatch/internal/eventbus"
	"guildwatch/internal/notifier"
	"guildwatch/internal/task/scheduler"
	"guildwatch/internal/watch"
	logx "guildwatch/pkg/logx"
)

const namespace = "guildwatch"

// StatusFunc reports live watch state for gauges.
type StatusFunc func() watch.Status

type Option func(*Collector)

// WithRegistry replaces the private registry (tests).
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Collector) { c.reg = reg }
}

// WithStatus exports roster size and dedup fill from fn.
func WithStatus(fn StatusFunc) Option {
	return func(c *Collector) { c.status = fn }
}

// WithBusDropped exports the bus drop counter.
func WithBusDropped(fn func() uint64) Option {
	return func(c *Collector) { c.dropped = fn }
}

// WithRuntimeCollectors adds the Go and process collectors.
func WithRuntimeCollectors() Option {
	return func(c *Collector) { c.runtime = true }
}

type Collector struct {
	reg     *prometheus.Registry
	log     logx.Logger
	status  StatusFunc
	dropped func() uint64
	runtime bool

	levelChanges  prometheus.Counter
	kills         prometheus.Counter
	fetchFailures *prometheus.CounterVec
	ticks         *prometheus.CounterVec
	tickDuration  *prometheus.HistogramVec
	tickSkips     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	sendDuration  prometheus.Histogram
}

func New(log logx.Logger, opts ...Option) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Collector{log: log}
	for _, o := range opts {
		o(c)
	}
	if c.reg == nil {
		c.reg = prometheus.NewRegistry()
	}
	c.init()
	return c
}

func (c *Collector) init() {
	auto := promauto.With(c.reg)

	c.levelChanges = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "level_changes_total",
		Help:      "Level increases detected across roster snapshots.",
	})
	c.kills = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "kills_total",
		Help:      "Kill events by roster members announced.",
	})
	c.fetchFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_failures_total",
		Help:      "Failed roster or feed fetches.",
	}, []string{"task"})
	c.ticks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Completed task runs by result.",
	}, []string{"task", "result"})
	c.tickDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Task run duration.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"task"})
	c.tickSkips = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "ticks_skipped_total",
		Help:      "Firings skipped because the previous run was still in flight.",
	}, []string{"task"})
	c.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "messages_total",
		Help:      "Notification attempts by kind and result.",
	}, []string{"kind", "result"})
	c.sendDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "send_duration_seconds",
		Help:      "Time spent delivering one notification.",
		Buckets:   prometheus.DefBuckets,
	})

	if c.status != nil {
		auto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roster_members",
			Help:      "Members in the current roster snapshot.",
		}, func() float64 { return float64(c.status().Members) })
		auto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_entries",
			Help:      "Identities held by the dedup cache.",
		}, func() float64 { return float64(c.status().DedupLen) })
	}
	if c.dropped != nil {
		auto.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber was full.",
		}, func() float64 { return float64(c.dropped()) })
	}
	if c.runtime {
		c.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Observe records one bus event. Unknown types are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeLevelChanged:
		c.levelChanges.Inc()
	case eventbus.TypeKillObserved:
		c.kills.Inc()
	case eventbus.TypeFetchFailed:
		if f, ok := e.Data.(watch.FetchFailure); ok {
			c.fetchFailures.WithLabelValues(f.Task).Inc()
		}
	case eventbus.TypeTickCompleted:
		if t, ok := e.Data.(scheduler.TickEvent); ok {
			result := "ok"
			if t.Error != "" {
				result = "error"
			}
			c.ticks.WithLabelValues(t.Task, result).Inc()
			c.tickDuration.WithLabelValues(t.Task).Observe(t.Took.Seconds())
		}
	case eventbus.TypeTickSkipped:
		if t, ok := e.Data.(scheduler.TickEvent); ok {
			c.tickSkips.WithLabelValues(t.Task).Inc()
		}
	case eventbus.TypeNotifySent, eventbus.TypeNotifyFailed:
		if n, ok := e.Data.(notifier.Event); ok {
			result := "sent"
			if e.Type == eventbus.TypeNotifyFailed {
				result = "failed"
			}
			c.notifications.WithLabelValues(n.Kind, result).Inc()
			c.sendDuration.Observe(n.Took.Seconds())
		}
	}
}

// Run consumes bus events until ctx ends.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	events, unsub := bus.Subscribe(256)
	defer unsub()
	c.log.Debug("metrics collector started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}
