package storage

import (
	"strings"

	logx "nagbot/pkg/logx"
)

// Open initializes the configured store.
//
// A storage outage must never take the bot down: on any failure (unknown or
// unreachable backend) Open logs the problem and returns the no-op store, so
// callers simply never persist or find reminders.
func Open(cfg Config, log logx.Logger) Store {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none":
		log.Warn("storage disabled; reminders will not be persisted")
		return Noop()
	case "sqlite", "sqlite3":
		st, err := openSQLite(cfg, log)
		if err != nil {
			log.Error("sqlite unavailable; degrading to no-op storage", logx.Err(err), logx.String("path", cfg.Path))
			return Noop()
		}
		return st
	case "redis":
		st, err := openRedis(cfg, log)
		if err != nil {
			log.Error("redis unavailable; degrading to no-op storage", logx.Err(err), logx.String("addr", cfg.RedisAddr))
			return Noop()
		}
		return st
	default:
		log.Error("unknown storage driver; degrading to no-op storage", logx.String("driver", driver))
		return Noop()
	}
}
