package storage

import (
	"fmt"
	"strings"

	logx "guildwatch/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, ErrDisabled) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "none":
		return nil, ErrDisabled
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
