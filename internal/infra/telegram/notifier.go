package telegram

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"traffic-quiz-service/internal/logger"
)

// Notifier sends bot messages to a user's private chat. For private chats the
// chat id equals the Telegram user id.
type Notifier struct {
	api *tgbotapi.BotAPI
	log *logger.Logger
}

func NewNotifier(token string, log *logger.Logger) (*Notifier, error) {
	return NewNotifierWithEndpoint(token, tgbotapi.APIEndpoint, http.DefaultClient, log)
}

// NewNotifierWithEndpoint lets tests point the bot at a local server.
func NewNotifierWithEndpoint(token, endpoint string, client tgbotapi.HTTPClient, log *logger.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	log = log.With("component", "telegram")
	log.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Notifier{api: api, log: log}, nil
}

func (n *Notifier) Notify(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	n.log.Debug("notification sent", "user_id", userID)
	return nil
}
