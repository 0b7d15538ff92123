package storage

import (
	"errors"
	"strings"

	logx "reminderd/pkg/logx"
)

// Open initializes the configured store. An empty driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
