package config

import "strings"

const (
	DefaultRosterRowSelector = "#guildViewTable tr.tr-border"
	DefaultRosterNameColumn  = 1
	DefaultRosterLevelColumn = 2

	DefaultFeedRowSelector     = "#deathsTable tr"
	DefaultFeedTargetColumn    = 0
	DefaultFeedTimestampColumn = 1
	DefaultFeedActorColumn     = 2
	DefaultNameSeparator       = ": "

	DefaultLevelsSchedule = "10s"
	DefaultEventsSchedule = "30s"
	DefaultDedupCapacity  = 30

	DefaultOpsAddr     = "127.0.0.1:9108"
	DefaultStoragePath = "./guildwatch_audit"
)

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func strOr(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// Columns returns the effective roster row selector and cell indexes.
func (l RosterLayout) Columns() (selector string, name, level int) {
	return strOr(l.RowSelector, DefaultRosterRowSelector),
		intOr(l.NameColumn, DefaultRosterNameColumn),
		intOr(l.LevelColumn, DefaultRosterLevelColumn)
}

// FeedColumns is the resolved form of FeedLayout.
type FeedColumns struct {
	RowSelector   string
	SkipHeader    bool
	Target        int
	Timestamp     int
	Actor         int
	NameSeparator string
}

func (l FeedLayout) Columns() FeedColumns {
	sep := l.NameSeparator
	if sep == "" {
		sep = DefaultNameSeparator
	}
	return FeedColumns{
		RowSelector:   strOr(l.RowSelector, DefaultFeedRowSelector),
		SkipHeader:    boolOr(l.SkipHeader, true),
		Target:        intOr(l.TargetColumn, DefaultFeedTargetColumn),
		Timestamp:     intOr(l.TimestampColumn, DefaultFeedTimestampColumn),
		Actor:         intOr(l.ActorColumn, DefaultFeedActorColumn),
		NameSeparator: sep,
	}
}

func (w WatchConfig) Levels() string { return strOr(w.LevelsSchedule, DefaultLevelsSchedule) }
func (w WatchConfig) Events() string { return strOr(w.EventsSchedule, DefaultEventsSchedule) }

func (w WatchConfig) Capacity() int {
	if w.DedupCapacity <= 0 {
		return DefaultDedupCapacity
	}
	return w.DedupCapacity
}

func (w WatchConfig) InitialSnapshotRequired() bool { return boolOr(w.RequireInitialSnapshot, true) }
func (w WatchConfig) OnlineMessage() bool           { return boolOr(w.SendOnline, true) }

func (o OpsConfig) ListenAddr() string { return strOr(o.Addr, DefaultOpsAddr) }

// StorageDriver normalizes the driver name; "" and "none" both mean disabled.
func (s StorageConfig) StorageDriver() string {
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	if d == "none" {
		return ""
	}
	return d
}

func (s StorageConfig) StoragePath() string { return strOr(s.Path, DefaultStoragePath) }
