package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatbridge/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000

	// callbackSendPath is the callback ingress route for discord pushes,
	// joined onto the configured public base URL.
	callbackSendPath = "/discord/send"
)

const (
	placeholderAttachment     = "[User sent an attachment]"
	placeholderDiscordSticker = "[User sent a sticker]"
)

// Discord implements domain.Channel for Discord. It is the push-back
// capable platform: messages it normalizes carry a callback URL when a
// public base URL is configured, and it implements domain.Pusher for the
// callback ingress.
type Discord struct {
	token         string
	guildID       string
	publicBaseURL string
	session       *discordgo.Session
	bus           domain.MessageBus
	logger        *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token         string
	GuildID       string
	PublicBaseURL string // externally reachable base for the callback ingress; empty = no callback URL attached
	Logger        *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:         cfg.Token,
		guildID:       cfg.GuildID,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and begins listening.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	d.session = session

	bus.OnOutbound(domain.PlatformDiscord, func(msg domain.Outbound) {
		if msg.Content == "" {
			return
		}
		d.sendReply(msg.ChatID, msg.ReplyToID, msg.Content)
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// Ignore bot's own messages and other bots.
		if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}

		// If guildID is set, filter messages.
		if d.guildID != "" && m.GuildID != d.guildID {
			return
		}

		canonical, ok := d.normalize(m)
		if !ok {
			return
		}

		d.logger.Info("discord message received",
			"author", canonical.UserName,
			"channel_id", canonical.GroupID,
			"content_len", len(canonical.Content),
		)

		bus.Publish(canonical)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	// Wait for context cancellation.
	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) Stop() error { return nil }

// normalize turns a Discord message event into the canonical record.
// Returns false when the event carries no usable content.
func (d *Discord) normalize(m *discordgo.MessageCreate) (domain.Message, bool) {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		switch {
		case len(m.Attachments) > 0:
			content = placeholderAttachment
		case len(m.StickerItems) > 0:
			content = placeholderDiscordSticker
		default:
			return domain.Message{}, false
		}
	}

	userName := firstNonEmpty(m.Author.Username, m.Author.GlobalName, m.Author.ID)

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	msg := domain.Message{
		Platform:  domain.PlatformDiscord,
		GroupID:   m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  userName,
		Content:   content,
		Timestamp: ts.UTC().Format(time.RFC3339),
		MessageID: m.ID,
	}
	if d.publicBaseURL != "" {
		msg.CallbackURL = d.publicBaseURL + callbackSendPath
	}
	return msg, true
}

// sendReply replies to the original message when a reference is available,
// falling back to a plain channel send.
func (d *Discord) sendReply(channelID, replyToID, content string) {
	for i, chunk := range splitMessage(content, discordMaxMsgLen) {
		var err error
		if i == 0 && replyToID != "" {
			_, err = d.session.ChannelMessageSendReply(channelID, chunk, &discordgo.MessageReference{
				MessageID: replyToID,
				ChannelID: channelID,
			})
		} else {
			_, err = d.session.ChannelMessageSend(channelID, chunk)
		}
		if err != nil {
			d.logger.Error("discord send failed", "channel", channelID, "err", err)
			return
		}
	}
}

// Push delivers an AI-initiated message to a channel, used by the callback
// ingress. The target must resolve through the gateway session state or the
// REST API before anything is sent.
func (d *Discord) Push(ctx context.Context, channelID string, content string) error {
	if d.session == nil {
		return fmt.Errorf("discord session not connected yet")
	}
	if _, err := d.session.State.Channel(channelID); err != nil {
		if _, err := d.session.Channel(channelID); err != nil {
			return domain.ErrChannelNotFound
		}
	}

	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}
