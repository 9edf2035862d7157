package domain

import (
	"context"
	"errors"
)

// Channel is the interface for platform-facing I/O (Telegram, Discord,
// WhatsApp webhook). A channel owns its session lifecycle, normalizes
// inbound events into canonical Messages, and delivers routed replies.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}

// Pusher delivers AI-initiated messages to a channel outside the inbound
// request/response cycle. Implemented by channels that support push-back
// through the callback ingress.
type Pusher interface {
	Push(ctx context.Context, channelID string, content string) error
}

// ErrChannelNotFound is returned by Pusher implementations when the target
// channel cannot be resolved through the platform session.
var ErrChannelNotFound = errors.New("channel not found")
