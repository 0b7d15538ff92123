package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reminderd/internal/channel"
	"reminderd/internal/config"
	"reminderd/internal/httpapi"
	"reminderd/internal/reminder"
	"reminderd/internal/scheduler"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Schedule: cfg.Scheduler.Schedule,
		Timezone: cfg.Scheduler.Timezone,
	}
}

// mapReminderOptions converts the reminder section. Messages are rendered in
// the scheduler timezone so "Due:" lines match the operator's clock.
func mapReminderOptions(cfg *config.Config) (reminder.Options, error) {
	def := reminder.DefaultOptions()
	rc := cfg.Reminder

	window, err := config.ParseDurationOrDefault("reminder.due_window", rc.DueWindow, def.DueWindow)
	if err != nil {
		return reminder.Options{}, err
	}
	pacing, err := config.ParseDurationField("reminder.pacing", rc.Pacing)
	if err != nil {
		return reminder.Options{}, err
	}
	sendTimeout, err := config.ParseDurationField("reminder.send_timeout", rc.SendTimeout)
	if err != nil {
		return reminder.Options{}, err
	}
	if rc.MaxAttempts < 0 {
		return reminder.Options{}, errors.New("reminder.max_attempts must be >= 0")
	}
	cc := strings.TrimPrefix(strings.TrimSpace(rc.DefaultCountryCode), "+")
	for _, r := range cc {
		if r < '0' || r > '9' {
			return reminder.Options{}, fmt.Errorf("reminder.default_country_code: invalid %q", rc.DefaultCountryCode)
		}
	}

	// Same default as the cron entry, so "Due:" lines match the schedule clock.
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return reminder.Options{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}

	return reminder.Options{
		DueWindow:   window,
		Pacing:      pacing,
		SendTimeout: sendTimeout,
		MaxAttempts: rc.MaxAttempts,
		CountryCode: cc,
		Location:    loc,
	}, nil
}

func mapChannelConfig(cfg *config.Config) (channel.Config, error) {
	cc := cfg.Channel
	if cc.RatePerSec < 0 {
		return channel.Config{}, errors.New("channel.rate_per_sec must be >= 0")
	}
	switch d := strings.ToLower(strings.TrimSpace(cc.Driver)); d {
	case "", "simulated", "twilio", "telegram":
	default:
		return channel.Config{}, fmt.Errorf("unknown channel.driver: %s", cc.Driver)
	}
	return channel.Config{
		Driver:     cc.Driver,
		RatePerSec: cc.RatePerSec,
		Twilio: channel.TwilioConfig{
			AccountSID: cc.Twilio.AccountSID,
			AuthToken:  cc.Twilio.AuthToken,
			FromNumber: cc.Twilio.FromNumber,
			BaseURL:    cc.Twilio.BaseURL,
		},
		Telegram: channel.TelegramConfig{
			Token:         cc.Telegram.Token,
			URL:           cc.Telegram.URL,
			DefaultChatID: cc.Telegram.DefaultChatID,
			Contacts:      cc.Telegram.Contacts,
		},
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
		}
	case "memory":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	return httpapi.Config{
		Enabled: cfg.HTTP.Enabled,
		Addr:    cfg.HTTP.Addr,
		Token:   cfg.HTTP.Token,
	}
}

// Validate checks everything a hot reload would apply. It is the
// ConfigManager validator, so a bad edit never replaces a running config.
func Validate(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := mapSchedulerConfig(cfg).Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if _, err := mapReminderOptions(cfg); err != nil {
		return err
	}
	if _, err := mapChannelConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
