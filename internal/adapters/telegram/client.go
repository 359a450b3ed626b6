package telegram

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/metrics"
)

// Client оборачивает Bot API. Временный сбой транспорта повторяется
// один раз после пересоздания HTTP-сессии.
type Client struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// NewClient создаёт клиента платформы.
func NewClient(token string, logger zerolog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	bot.Client = newSession()
	return &Client{bot: bot, log: logger}, nil
}

func newSession() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) resetSession() {
	c.bot.Client = newSession()
	c.log.Warn().Msg("сессия платформы пересоздана")
}

// Self возвращает учётку бота, под которой открыта сессия.
func (c *Client) Self() domain.User {
	return domain.User{
		ID:        c.bot.Self.ID,
		Username:  c.bot.Self.UserName,
		FirstName: c.bot.Self.FirstName,
		LastName:  c.bot.Self.LastName,
	}
}

// GetUpdates забирает очередную пачку событий начиная с offset.
func (c *Client) GetUpdates(offset int64, limit int) ([]domain.Update, error) {
	cfg := tgbotapi.UpdateConfig{Offset: int(offset), Limit: limit}
	start := time.Now()
	raw, err := c.bot.GetUpdates(cfg)
	if err != nil {
		c.resetSession()
		raw, err = c.bot.GetUpdates(cfg)
	}
	metrics.ObserveNetworkRequest("telegram", "get_updates", start, err)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	updates := make([]domain.Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, domain.Update{ID: int64(u.UpdateID), Message: FromAPI(u.Message)})
	}
	return updates, nil
}

// Send отправляет текст и возвращает отправленное сообщение.
func (c *Client) Send(chatID int64, text string, replyTo int64) (*domain.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyTo != 0 {
		msg.ReplyToMessageID = int(replyTo)
	}
	start := time.Now()
	sent, err := c.bot.Send(msg)
	if err != nil {
		c.resetSession()
		sent, err = c.bot.Send(msg)
	}
	metrics.ObserveNetworkRequest("telegram", "send_message", start, err)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return FromAPI(&sent), nil
}

// ForwardMessage пересылает сообщение по ссылке.
func (c *Client) ForwardMessage(msgID, fromChatID, toChatID int64) (*domain.Message, error) {
	fwd := tgbotapi.NewForward(toChatID, fromChatID, int(msgID))
	start := time.Now()
	sent, err := c.bot.Send(fwd)
	metrics.ObserveNetworkRequest("telegram", "forward_message", start, err)
	if err != nil {
		return nil, fmt.Errorf("forward message %d: %w", msgID, err)
	}
	return FromAPI(&sent), nil
}

// SendChatAction показывает индикатор набора текста.
func (c *Client) SendChatAction(chatID int64) error {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	start := time.Now()
	_, err := c.bot.Request(action)
	metrics.ObserveNetworkRequest("telegram", "chat_action", start, err)
	if err != nil {
		return fmt.Errorf("chat action: %w", err)
	}
	return nil
}
