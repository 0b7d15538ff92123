package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

type TelegramConfig struct {
	Token string
	// Contacts maps a normalized destination (E.164) to a chat id.
	Contacts map[string]int64
	// DefaultChatID receives reminders whose destination has no contact.
	DefaultChatID int64
	// URL overrides the Bot API endpoint (tests).
	URL string
}

// Telegram delivers reminders as bot messages. It never polls for updates.
type Telegram struct {
	cfg TelegramConfig
	log logx.Logger
	bot *tele.Bot
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		URL:   cfg.URL,
		Token: cfg.Token,
		// Send-only: skip getMe at startup so an unreachable API fails per
		// send instead of at boot.
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{cfg: cfg, log: log, bot: b}, nil
}

func (t *Telegram) chatFor(destination string) (int64, bool) {
	if id, ok := t.cfg.Contacts[destination]; ok && id != 0 {
		return id, true
	}
	if t.cfg.DefaultChatID != 0 {
		return t.cfg.DefaultChatID, true
	}
	return 0, false
}

func (t *Telegram) Send(ctx context.Context, destination, message string) (reminder.Delivery, error) {
	chatID, ok := t.chatFor(destination)
	if !ok {
		return reminder.Delivery{}, fmt.Errorf("no telegram chat for %s", destination)
	}

	// telebot has no per-call context; bound the call here.
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := t.bot.Send(&tele.Chat{ID: chatID}, message)
		done <- result{m, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return reminder.Delivery{}, ctx.Err()
	case r = <-done:
	case <-time.After(30 * time.Second):
		return reminder.Delivery{}, errors.New("telegram send timed out")
	}
	if r.err != nil {
		return reminder.Delivery{}, r.err
	}
	id := ""
	if r.msg != nil {
		id = strconv.Itoa(r.msg.ID)
	}
	t.log.Debug("telegram message sent", logx.Int64("chat_id", chatID), logx.String("message_id", id))
	return reminder.Delivery{ID: id}, nil
}
