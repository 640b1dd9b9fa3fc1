package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes booking and progress messages into telegram chats.
// Managers get every message; customers are reached through the chat registry
// (email -> chat id), with a manager relay when the customer has no chat.
type TelegramNotifier struct {
	bot           Sender
	managerChats  []int64
	customerChats map[string]int64
	logger        *zerolog.Logger
}

func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func NewTelegramNotifier(bot Sender, managerChats []int64, customerChats map[string]int64, logger *zerolog.Logger) *TelegramNotifier {
	if customerChats == nil {
		customerChats = make(map[string]int64)
	}
	return &TelegramNotifier{
		bot:           bot,
		managerChats:  managerChats,
		customerChats: customerChats,
		logger:        logger,
	}
}

func (n *TelegramNotifier) NotifyManagers(ctx context.Context, text string) error {
	var lastErr error
	for _, chatID := range n.managerChats {
		if err := n.send(chatID, text); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("manager notification failed")
			lastErr = err
		}
	}
	return lastErr
}

func (n *TelegramNotifier) NotifyCustomer(ctx context.Context, email, text string) error {
	chatID, ok := n.customerChats[email]
	if !ok {
		// No registered chat: relay through the managers so staff can
		// forward the update.
		return n.NotifyManagers(ctx, fmt.Sprintf("[for %s]\n%s", email, text))
	}
	return n.send(chatID, text)
}

func (n *TelegramNotifier) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := n.bot.Send(msg)
	return err
}
