package notificator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/praemium/pkg/logger"
)

const sendTimeout = 10 * time.Second

// TelegramNotificator posts outcomes to the operators' chat.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot
	chatID string
}

// NewTelegramNotificator connects the bot and starts polling for updates until ctx is done.
func NewTelegramNotificator(ctx context.Context, token, chatID string, logger *logger.Logger) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger,
		chatID: chatID,
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	go b.Start(ctx)
	provider.bot = b

	return provider, nil
}

func (t *TelegramNotificator) SendNotification(message string) {
	if t.chatID == "" {
		return
	}
	t.send(t.chatID, message)
}

func (t *TelegramNotificator) send(chatID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		t.logger.Error("Failed to send notification: ", err)
	}
}

// handler answers /start with the chat id to configure as TELEGRAM_CHAT_ID.
func (t *TelegramNotificator) handler(_ context.Context, _ *bot.Bot, update *tgModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	t.logger.Debug("Telegram update: ", update.Message.From.Username, " ", update.Message.Text)
	if update.Message.Text != "/start" {
		return
	}
	chatID := fmt.Sprint(update.Message.Chat.ID)
	if chatID == t.chatID {
		t.send(chatID, "This chat receives staking notifications.")
		return
	}
	t.send(chatID, "Set TELEGRAM_CHAT_ID="+chatID+" to receive staking notifications here.")
}
