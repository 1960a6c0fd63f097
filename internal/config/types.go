package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m").
// Sections marked "runtime" are re-applied on hot reload; everything else is
// read once at start.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Sources  SourcesConfig  `json:"sources"`
	Watch    WatchConfig    `json:"watch"`
	Messages MessagesConfig `json:"messages"`

	Logging  LoggingConfig  `json:"logging"`  // runtime
	Notifier NotifierConfig `json:"notifier"` // runtime (rate only)
	Storage  StorageConfig  `json:"storage"`
	Ops      OpsConfig      `json:"ops"` // runtime
}

// TelegramConfig configures the single notification destination.
//
// The token is normally supplied through GUILDWATCH_TELEGRAM__TOKEN.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// APIURL overrides the Bot API endpoint (default api.telegram.org).
	APIURL         string `json:"api_url,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	Silent         bool   `json:"silent,omitempty"`
}

type SourcesConfig struct {
	RosterURL string `json:"roster_url"`
	FeedURL   string `json:"feed_url"`
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"`

	Roster RosterLayout `json:"roster"`
	Feed   FeedLayout   `json:"feed"`
}

// RosterLayout locates members on the roster page.
// Columns are zero-based cell indexes; nil means the default.
type RosterLayout struct {
	RowSelector string `json:"row_selector,omitempty"`
	NameColumn  *int   `json:"name_column,omitempty"`
	LevelColumn *int   `json:"level_column,omitempty"`
}

// FeedLayout locates death records on the feed page.
type FeedLayout struct {
	RowSelector     string `json:"row_selector,omitempty"`
	SkipHeader      *bool  `json:"skip_header,omitempty"`
	TargetColumn    *int   `json:"target_column,omitempty"`
	TimestampColumn *int   `json:"timestamp_column,omitempty"`
	ActorColumn     *int   `json:"actor_column,omitempty"`
	// NameSeparator precedes the name inside descriptor cells ("Killed by: Name").
	NameSeparator string `json:"name_separator,omitempty"`
}

type WatchConfig struct {
	LevelsSchedule string `json:"levels_schedule,omitempty"`
	EventsSchedule string `json:"events_schedule,omitempty"`
	TickTimeout    string `json:"tick_timeout,omitempty"`
	DedupCapacity  int    `json:"dedup_capacity,omitempty"`
	// RequireInitialSnapshot makes a failed startup capture fatal (default true).
	RequireInitialSnapshot *bool  `json:"require_initial_snapshot,omitempty"`
	Timezone               string `json:"timezone,omitempty"`
	SendOnline             *bool  `json:"send_online,omitempty"`
}

// MessagesConfig holds text/template overrides. Empty keeps the built-in text.
type MessagesConfig struct {
	Online  string `json:"online,omitempty"`
	LevelUp string `json:"level_up,omitempty"`
	Kill    string `json:"kill,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifierConfig tunes outbound delivery.
type NotifierConfig struct {
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
	HistorySize int     `json:"history_size,omitempty"`
}

// StorageConfig controls the optional notification audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./guildwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "", "none", "file", "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// OpsConfig controls the operations HTTP server (/healthz, /metrics, pprof).
//
// Bind to localhost unless a token is set or allow_insecure is explicit.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:9108"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
