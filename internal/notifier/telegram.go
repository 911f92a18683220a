package notifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint (default https://api.telegram.org).
	APIURL     string
	RatePerSec float64
	Timeout    time.Duration
}

// Telegram sends HTML messages to one chat (optionally one forum topic).
type Telegram struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
	limiter  *rate.Limiter
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	// Offline skips the getMe round trip; this bot only sends.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:      b,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 3),
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, ev Event) error {
	return t.send(ctx, HTMLText(ev))
}

func (t *Telegram) SendSummary(ctx context.Context, s Summary) error {
	return t.send(ctx, SummaryHTML(s))
}

func (t *Telegram) send(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              t.threadID,
	})
	return err
}
