package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "reminderd/pkg/logx"
)

const sampleYAML = `
logging:
  level: debug
scheduler:
  schedule: "5m"
  timezone: Europe/Berlin
reminder:
  max_attempts: 3
channel:
  driver: telegram
  telegram:
    default_chat_id: 99
    contacts:
      "+15551234567": 7
storage:
  driver: memory
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAMLOverDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "reminderd.yaml", sampleYAML)

	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console, "omitted fields keep defaults")
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "5m", cfg.Scheduler.Schedule)
	assert.Equal(t, 3, cfg.Reminder.MaxAttempts)
	assert.Equal(t, "1h", cfg.Reminder.DueWindow)
	assert.Equal(t, int64(7), cfg.Channel.Telegram.Contacts["+15551234567"])
	assert.Equal(t, int64(99), cfg.Channel.Telegram.DefaultChatID)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "127.0.0.1:3000", cfg.HTTP.Addr)
}

func TestParseJSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "reminderd.json", `{"http":{"enabled":false}}`)

	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)
	assert.False(t, cfg.HTTP.Enabled)
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.Schedule)
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	_, err := Decode("c.yaml", []byte("scheduler:\n  workers: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")

	_, err = Decode("c.json", []byte(`{} {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestDecodeEmptyYAMLIsDefault(t *testing.T) {
	cfg, err := Decode("c.yml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv(EnvTwilioAccountSID, "AC123")
	t.Setenv(EnvTwilioAuthToken, "secret")
	t.Setenv(EnvTwilioFrom, "+15550000000")
	t.Setenv(EnvTelegramToken, "")
	p := writeFile(t, t.TempDir(), "c.yaml", "channel:\n  telegram:\n    token: from-file\n")

	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)
	assert.Equal(t, "AC123", cfg.Channel.Twilio.AccountSID)
	assert.Equal(t, "secret", cfg.Channel.Twilio.AuthToken)
	assert.Equal(t, "+15550000000", cfg.Channel.Twilio.FromNumber)
	assert.Equal(t, "from-file", cfg.Channel.Telegram.Token, "empty env keeps file value")
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("x", " 90s ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = ParseDurationField("x", "")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ParseDurationField("reminder.pacing", "-1s")
	assert.ErrorContains(t, err, "reminder.pacing")

	_, err = ParseDurationField("x", "soon")
	assert.Error(t, err)

	d, err = ParseDurationOrDefault("x", "0s", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	oldCfg := Default()
	newCfg := Default()
	newCfg.Channel.Twilio.AuthToken = "super-secret"
	newCfg.HTTP.Token = "api-secret"
	newCfg.Scheduler.Schedule = "1h"

	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"channel", "http", "scheduler"}, sections)

	var buf bytes.Buffer
	logx.NewWriter(&buf, "info").Info("config reloaded", attrs...)
	assert.NotContains(t, buf.String(), "secret")
	assert.Contains(t, buf.String(), `"http.token_set":true`)

	sections, _ = SummarizeConfigChange(oldCfg, Default())
	assert.Empty(t, sections)
}

func TestSummarizeConfigChangeContacts(t *testing.T) {
	oldCfg := Default()
	newCfg := Default()
	newCfg.Channel.Telegram.Contacts = map[string]int64{"+15551234567": 1}

	sections, _ := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"channel"}, sections)
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("unused.yaml")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first, second := Default(), Default()
	second.Logging.Level = "warn"
	m.publish(first)
	m.publish(second)

	assert.Same(t, second, <-ch)
}

func TestWatchPublishesValidatedChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "reminderd.yaml", "logging:\n  level: info\n")

	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Logging.Level == "bogus" {
			return assert.AnError
		}
		return nil
	})
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// The watcher registers asynchronously; keep rewriting until it notices.
	var got *Config
	require.Eventually(t, func() bool {
		_ = os.WriteFile(p, []byte("logging:\n  level: debug\n"), 0o600)
		select {
		case got = <-sub:
			return true
		case <-time.After(4 * reloadDebounce):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, "debug", got.Logging.Level)
	assert.Equal(t, "debug", m.Get().Logging.Level)

	require.NoError(t, os.WriteFile(p, []byte("logging:\n  level: bogus\n"), 0o600))
	time.Sleep(4 * reloadDebounce)
	assert.Equal(t, "debug", m.Get().Logging.Level, "rejected config is not committed")
	assert.True(t, strings.EqualFold(m.Path(), p))
}
