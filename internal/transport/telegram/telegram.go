// Package telegram implements transport.Adapter on top of telebot.
//
// The adapter is send-only: guildwatch has no command surface, so the bot never
// polls for updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"guildwatch/internal/transport"
	logx "guildwatch/pkg/logx"
)

var ErrEmptyToken = errors.New("telegram token is empty")

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string
	// Timeout bounds every Bot API HTTP call.
	Timeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

// New creates the bot client and verifies the token with getMe.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrEmptyToken
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:  strings.TrimSpace(cfg.Token),
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	log.Info("telegram bot ready", logx.String("bot", a.Identity()))
	return a, nil
}

func (a *Adapter) Identity() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	if a.bot.Me.Username != "" {
		return "@" + a.bot.Me.Username
	}
	return a.bot.Me.FirstName
}

func (a *Adapter) Resolve(ctx context.Context, chatID int64) (transport.ChatInfo, error) {
	if chatID == 0 {
		return transport.ChatInfo{}, errors.New("telegram chat id is empty")
	}
	if err := ctxErr(ctx); err != nil {
		return transport.ChatInfo{}, err
	}
	c, err := a.bot.ChatByID(chatID)
	if err != nil {
		return transport.ChatInfo{}, fmt.Errorf("telegram getChat %d: %w", chatID, err)
	}
	title := c.Title
	if title == "" {
		title = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	return transport.ChatInfo{ID: c.ID, Title: title, Type: string(c.Type)}, nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}

	chunks := splitText(text, textLimit, opt.ParseMode)
	if len(chunks) == 0 {
		return transport.MessageRef{}, errors.New("telegram: empty message")
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first transport.MessageRef
	for i, chunk := range chunks {
		if err := ctxErr(ctx); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			DisableNotification:   opt.Silent,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
