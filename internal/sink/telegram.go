package sink

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/t77yq/loadwatch/internal/model"
)

// Messenger is the part of the Telegram bot API the sink uses
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramConfig configures a Telegram sink
type TelegramConfig struct {
	Token string
	// DefaultChat receives alerts whose target has no chat of its own
	DefaultChat int64
	// Chats maps a target key (user, team or channel id) to a chat id
	Chats         map[string]int64
	RatePerSecond int
}

// Telegram delivers alerts through a chat bot, rate limited across all chats
type Telegram struct {
	logger      *zap.Logger
	client      Messenger
	limiter     *rate.Limiter
	chats       map[string]int64
	defaultChat int64
}

// NewTelegram connects a bot with the configured token
func NewTelegram(cfg TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	b, err := bot.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return NewTelegramWithClient(b, cfg, logger), nil
}

// NewTelegramWithClient creates a Telegram sink over an existing client
func NewTelegramWithClient(client Messenger, cfg TelegramConfig, logger *zap.Logger) *Telegram {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	chats := make(map[string]int64, len(cfg.Chats))
	for k, v := range cfg.Chats {
		chats[k] = v
	}

	return &Telegram{
		logger:      logger.Named("sink.telegram"),
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond),
		chats:       chats,
		defaultChat: cfg.DefaultChat,
	}
}

// ChatFor resolves the chat for a target
func (t *Telegram) ChatFor(target model.Target) (int64, error) {
	if id, ok := t.chats[target.Key()]; ok {
		return id, nil
	}
	if t.defaultChat != 0 {
		return t.defaultChat, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNoChat, target)
}

// Deliver sends the message as Markdown
func (t *Telegram) Deliver(ctx context.Context, target model.Target, message string) error {
	chatID, err := t.ChatFor(target)
	if err != nil {
		return err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      message,
		ParseMode: "Markdown",
	}
	if _, err := t.client.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message to chat_id %d: %w", chatID, err)
	}

	t.logger.Debug("Telegram message sent",
		zap.Int64("chat_id", chatID),
		zap.String("target", target.String()))
	return nil
}
