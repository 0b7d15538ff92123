package channel

import (
	"errors"
	"fmt"
	"strings"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

type Config struct {
	// Driver is "simulated", "twilio" or "telegram". Empty picks twilio when
	// credentials are complete, simulated otherwise.
	Driver     string
	RatePerSec int // 0 disables the token bucket
	Twilio     TwilioConfig
	Telegram   TelegramConfig
}

// Open builds the configured channel, wrapped in a rate limiter when
// RatePerSec > 0.
func Open(cfg Config, log logx.Logger) (reminder.Channel, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "channel"))

	var (
		ch  reminder.Channel
		err error
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "":
		if cfg.Twilio.Complete() {
			ch, err = NewTwilio(cfg.Twilio, log)
		} else {
			log.Warn("twilio credentials not configured; reminders will be simulated")
			ch = NewSimulated(log)
		}
	case "simulated":
		ch = NewSimulated(log)
	case "twilio":
		ch, err = NewTwilio(cfg.Twilio, log)
	case "telegram":
		ch, err = NewTelegram(cfg.Telegram, log)
	default:
		return nil, errors.New("unknown channel driver: " + driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s channel: %w", cfg.Driver, err)
	}
	if cfg.RatePerSec > 0 {
		ch = NewRateLimited(ch, cfg.RatePerSec)
	}
	return ch, nil
}
