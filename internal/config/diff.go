package config

import (
	"maps"
	"sort"
	"strings"

	logx "reminderd/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secrets are reported only as *_set flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.schedule", strings.TrimSpace(newCfg.Scheduler.Schedule)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.String("reminder.due_window", newCfg.Reminder.DueWindow),
			logx.String("reminder.pacing", newCfg.Reminder.Pacing),
			logx.String("reminder.send_timeout", newCfg.Reminder.SendTimeout),
			logx.Int("reminder.max_attempts", newCfg.Reminder.MaxAttempts),
		)
	}

	if channelChanged(oldCfg.Channel, newCfg.Channel) {
		changed = append(changed, "channel")
		attrs = append(attrs,
			logx.String("channel.driver", newCfg.Channel.Driver),
			logx.Int("channel.rate_per_sec", newCfg.Channel.RatePerSec),
			logx.Bool("channel.twilio_auth_set", newCfg.Channel.Twilio.AuthToken != ""),
			logx.Bool("channel.telegram_token_set", newCfg.Channel.Telegram.Token != ""),
			logx.Int("channel.telegram_contacts", len(newCfg.Channel.Telegram.Contacts)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", newCfg.Storage.BusyTimeout),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func channelChanged(a, b ChannelConfig) bool {
	if a.Driver != b.Driver || a.RatePerSec != b.RatePerSec || a.Twilio != b.Twilio {
		return true
	}
	at, bt := a.Telegram, b.Telegram
	if at.Token != bt.Token || at.URL != bt.URL || at.DefaultChatID != bt.DefaultChatID {
		return true
	}
	return !maps.Equal(at.Contacts, bt.Contacts)
}
