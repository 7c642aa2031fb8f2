package notify

import (
	"fmt"

	"supertrend-bot-go/internal/config"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram sends messages through two separate bots: one for normal trade
// events, one for errors. Delivery failures are logged and swallowed.
type Telegram struct {
	mainBot     *tgbot.BotAPI
	errorBot    *tgbot.BotAPI
	mainChatID  int64
	errorChatID int64
	logger      *zap.Logger
}

var _ Notifier = (*Telegram)(nil)

// NewTelegram creates the Telegram notifier from the config.
func NewTelegram(cfg *config.Telegram, logger *zap.Logger) (*Telegram, error) {
	mainBot, err := tgbot.NewBotAPI(cfg.MainToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create main telegram bot: %w", err)
	}

	errorBot, err := tgbot.NewBotAPI(cfg.ErrorToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create error telegram bot: %w", err)
	}

	logger.Info("Telegram notifier initialized",
		zap.String("main_bot", mainBot.Self.UserName),
		zap.String("error_bot", errorBot.Self.UserName),
	)

	return &Telegram{
		mainBot:     mainBot,
		errorBot:    errorBot,
		mainChatID:  cfg.MainChatID,
		errorChatID: cfg.ErrorChatID,
		logger:      logger,
	}, nil
}

// Send delivers a message to the chosen channel. Best effort: a Telegram
// outage must never fail the trading pass.
func (t *Telegram) Send(channel Channel, text string) {
	bot, chatID := t.mainBot, t.mainChatID
	if channel == ChannelError {
		bot, chatID = t.errorBot, t.errorChatID
	}

	msg := tgbot.NewMessage(chatID, text)
	msg.ParseMode = tgbot.ModeHTML
	if _, err := bot.Send(msg); err != nil {
		t.logger.Error("Failed to send telegram message",
			zap.Int("channel", int(channel)),
			zap.Error(err),
		)
	}
}
