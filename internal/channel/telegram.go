package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"chatbridge/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// Media placeholders substituted when a message carries no text or caption.
const (
	placeholderPhoto     = "[User sent a photo]"
	placeholderVideo     = "[User sent a video]"
	placeholderDocument  = "[User sent a document]"
	placeholderVoice     = "[User sent a voice message]"
	placeholderSticker   = "[User sent a sticker]"
	placeholderAnimation = "[User sent a GIF]"
)

// Telegram implements domain.Channel for Telegram Bot.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // User IDs as strings
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound(domain.PlatformTelegram, func(msg domain.Outbound) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		t.sendMessage(chatID, msg.ReplyToID, msg.Content)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop shuts down the Telegram bot.
// Note: StopReceivingUpdates is already called when ctx is cancelled in
// Start(). Calling it twice panics, so Stop() is a no-op.
func (t *Telegram) Stop() error {
	return nil
}

// Push delivers an AI-initiated message to a chat, used by the callback
// ingress. Telegram keeps no local channel state, so resolution means the
// chat ID must parse and the send API must accept it.
func (t *Telegram) Push(ctx context.Context, channelID string, content string) error {
	if t.bot == nil {
		return fmt.Errorf("telegram session not connected yet")
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return domain.ErrChannelNotFound
	}
	for _, chunk := range splitMessage(content, telegramMaxMsgLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			if strings.Contains(err.Error(), "chat not found") {
				return domain.ErrChannelNotFound
			}
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := effectiveMessage(update)
	if msg == nil {
		return
	}

	if msg.From != nil && !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", msg.From.ID,
			"username", msg.From.UserName,
		)
		return
	}

	canonical, ok := normalizeTelegram(msg)
	if !ok {
		return
	}

	t.logger.Info("telegram message received",
		"chat_id", canonical.GroupID,
		"user", canonical.UserName,
		"content_len", len(canonical.Content),
	)

	t.bus.Publish(canonical)
}

// effectiveMessage returns the message carried by an update, covering
// regular, edited and channel-post updates.
func effectiveMessage(update tgbotapi.Update) *tgbotapi.Message {
	switch {
	case update.Message != nil:
		return update.Message
	case update.EditedMessage != nil:
		return update.EditedMessage
	case update.ChannelPost != nil:
		return update.ChannelPost
	case update.EditedChannelPost != nil:
		return update.EditedChannelPost
	}
	return nil
}

// normalizeTelegram turns a Telegram message into the canonical record.
// Returns false when the event has no usable content and must be dropped.
func normalizeTelegram(msg *tgbotapi.Message) (domain.Message, bool) {
	if msg.Chat == nil {
		return domain.Message{}, false
	}

	content := telegramContent(msg)
	if content == "" {
		return domain.Message{}, false
	}

	var userID, userName string
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
		userName = firstNonEmpty(msg.From.UserName, msg.From.FirstName, msg.From.LastName, userID)
	} else {
		// Channel posts carry no individual sender.
		userID = strconv.FormatInt(msg.Chat.ID, 10)
		userName = firstNonEmpty(msg.Chat.Title, "Channel")
	}
	if userName == "" {
		userName = "Unknown"
	}

	ts := time.Now().UTC()
	if msg.Date > 0 {
		ts = time.Unix(int64(msg.Date), 0).UTC()
	}

	return domain.Message{
		Platform:  domain.PlatformTelegram,
		GroupID:   strconv.FormatInt(msg.Chat.ID, 10),
		UserID:    userID,
		UserName:  userName,
		Content:   content,
		Timestamp: ts.Format(time.RFC3339),
		MessageID: strconv.Itoa(msg.MessageID),
	}, true
}

// telegramContent resolves the message body: text, then caption, then a
// placeholder keyed by the media kind. Empty means the event is dropped.
func telegramContent(msg *tgbotapi.Message) string {
	if text := strings.TrimSpace(msg.Text); text != "" {
		return text
	}
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		return caption
	}
	switch {
	case len(msg.Photo) > 0:
		return placeholderPhoto
	case msg.Video != nil:
		return placeholderVideo
	case msg.Document != nil:
		return placeholderDocument
	case msg.Voice != nil:
		return placeholderVoice
	case msg.Sticker != nil:
		return placeholderSticker
	case msg.Animation != nil:
		return placeholderAnimation
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// sendMessage delivers a reply in chunks. One attempt per chunk; failures
// are logged and dropped.
func (t *Telegram) sendMessage(chatID int64, replyToID, text string) {
	replyTo, _ := strconv.Atoi(replyToID)
	for i, chunk := range splitMessage(text, telegramMaxMsgLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
			return
		}
	}
}
