// Package telegram delivers notifications through the Telegram Bot API. The
// user's bot token is stored like any other credential, under the "telegram"
// service.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

const authService = "telegram"

type Provider struct {
	service.Base
	log logx.Logger
}

func New(log logx.Logger) *Provider {
	p := &Provider{log: log.With(logx.String("service", "telegram"))}
	p.Base = service.NewBase("Telegram", authService,
		nil,
		[]service.Reaction{{
			ReactionDefinition: service.ReactionDefinition{
				Name:        "send_message",
				Description: "Sends a message from the bot to a chat.",
				Parameters: []service.Parameter{
					{Name: "chat_id", Type: service.ParamString, Required: true},
					{Name: "message", Type: service.ParamString, Required: true},
				},
			},
			Run: p.sendMessage,
		}})
	return p
}

func (p *Provider) sendMessage(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no telegram bot token for user %s", ec.UserID)
	}

	chatID, err := parseChatID(params)
	if err != nil {
		return err
	}
	message, _ := params.String("message")

	// Offline skips the getMe handshake; the token is only exercised by the
	// send itself.
	bot, err := tele.NewBot(tele.Settings{Token: tok, Offline: true})
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := bot.Send(tele.ChatID(chatID), message)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send to %d: %w", chatID, err)
		}
		p.log.Debug("telegram message sent", logx.Int64("chat", chatID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseChatID(params service.Params) (int64, error) {
	if s, ok := params.String("chat_id"); ok {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("chat_id %q is not numeric", s)
		}
		return id, nil
	}
	if n, ok := params.Int64("chat_id"); ok {
		return n, nil
	}
	return 0, fmt.Errorf("chat_id is required")
}
