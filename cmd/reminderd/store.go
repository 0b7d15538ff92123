package main

import (
	"fmt"
	"strings"
	"time"

	"reminderd/internal/app"
	"reminderd/internal/config"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// openStore opens the configured store without starting the daemon.
func openStore(flags *Flags) (storage.Store, error) {
	cfg, err := config.NewConfigManager(flags.ConfigPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Storage.Driver), "memory") {
		return nil, fmt.Errorf("storage.driver=memory does not persist between commands")
	}
	return app.OpenStore(cfg, logx.NewConsole("warn"))
}

var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDue accepts an absolute time (RFC3339, or a local "2006-01-02 15:04")
// or a Go duration relative to now, e.g. "90m" or "-1h".
func parseDue(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("due time required")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due time %q (use RFC3339, \"2006-01-02 15:04\" or a duration like 2h)", raw)
}
