package config

import (
	"os"
	"strings"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Reminder  ReminderConfig  `json:"reminder"`
	Channel   ChannelConfig   `json:"channel"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls when reminder batches are triggered.
//
// Schedule accepts cron expressions ("*/15 * * * *", "@hourly"), Go
// durations ("15m") and HH:MM intervals ("00:15").
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`
}

// ReminderConfig tunes batch selection and dispatch.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
type ReminderConfig struct {
	DueWindow   string `json:"due_window"`
	Pacing      string `json:"pacing"`
	SendTimeout string `json:"send_timeout"`

	// MaxAttempts caps failed attempts per task; 0 means unlimited.
	MaxAttempts        int    `json:"max_attempts"`
	DefaultCountryCode string `json:"default_country_code"`
}

type ChannelConfig struct {
	Driver     string         `json:"driver"`
	RatePerSec int            `json:"rate_per_sec"`
	Twilio     TwilioConfig   `json:"twilio"`
	Telegram   TelegramConfig `json:"telegram"`
}

type TwilioConfig struct {
	AccountSID string `json:"account_sid,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"`
	FromNumber string `json:"from_number,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
}

type TelegramConfig struct {
	Token         string `json:"token,omitempty"`
	URL           string `json:"url,omitempty"`
	DefaultChatID int64  `json:"default_chat_id,omitempty"`
	// Contacts maps normalized phone numbers to chat ids.
	Contacts map[string]int64 `json:"contacts,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HTTPConfig controls the status/trigger API.
//
// When Token is empty the API only accepts loopback clients.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Token   string `json:"token,omitempty"`
}

// Default returns the config used for omitted fields.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./reminderd.log"},
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "*/15 * * * *",
		},
		Reminder: ReminderConfig{
			DueWindow:          "1h",
			Pacing:             "1s",
			SendTimeout:        "10s",
			DefaultCountryCode: "1",
		},
		Channel: ChannelConfig{RatePerSec: 1},
		Storage: StorageConfig{
			Driver:      "sqlite",
			Path:        "./data/reminderd.db",
			BusyTimeout: "5s",
		},
		HTTP: HTTPConfig{Enabled: true, Addr: "127.0.0.1:3000"},
	}
}

// Environment variables that override channel secrets.
const (
	EnvTwilioAccountSID = "TWILIO_ACCOUNT_SID"
	EnvTwilioAuthToken  = "TWILIO_AUTH_TOKEN"
	EnvTwilioFrom       = "TWILIO_PHONE_NUMBER"
	EnvTelegramToken    = "TELEGRAM_TOKEN"
)

// applyEnv fills secrets from the environment. Non-empty variables win over
// the file so credentials can stay out of it.
func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Channel.Twilio.AccountSID, EnvTwilioAccountSID)
	set(&c.Channel.Twilio.AuthToken, EnvTwilioAuthToken)
	set(&c.Channel.Twilio.FromNumber, EnvTwilioFrom)
	set(&c.Channel.Telegram.Token, EnvTelegramToken)
}
