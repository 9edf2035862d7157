package bridge

import (
	"context"
	"errors"
	"log/slog"

	"chatbridge/internal/domain"
)

// Loop is the core bridge engine: receive canonical message → AI handshake
// → route the answer back to the originating channel.
//
// Every inbound message is handled as an independent task with its own
// goroutine. Tasks share nothing mutable; a failed handshake terminates
// only its own task. There is deliberately no admission control: a slow AI
// endpoint makes each event wait out its own handshake budget.
type Loop struct {
	client *Client
	router *Router
	bus    domain.MessageBus
	logger *slog.Logger
}

// LoopConfig holds the dependencies for the bridge loop.
type LoopConfig struct {
	Client *Client
	Router *Router
	Bus    domain.MessageBus
	Logger *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{
		client: cfg.Client,
		router: cfg.Router,
		bus:    cfg.Bus,
		logger: cfg.Logger,
	}
}

// Run consumes inbound messages until the context is cancelled or the bus
// closes.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("bridge loop started", "endpoint", l.client.Endpoint())

	inbound := l.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("bridge loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, bridge loop stopping")
				return
			}
			go l.process(ctx, msg)
		}
	}
}

// process runs one message end to end. All handshake and delivery failures
// are recorded here and end the task; nothing propagates and nothing is
// retried.
func (l *Loop) process(ctx context.Context, msg domain.Message) {
	l.logger.Info("processing message",
		"platform", msg.Platform,
		"group_id", msg.GroupID,
		"user", msg.UserName,
		"content_len", len(msg.Content),
	)

	ans, err := l.client.Ask(ctx, &msg)
	if err != nil {
		l.logHandshakeError(msg, err)
		return
	}

	res := l.router.Route(ctx, ans, &msg, Delivery{Replier: busReplier{l.bus}})
	if res.Delivered {
		l.logger.Info("reply delivered", "platform", msg.Platform, "group_id", msg.GroupID)
	}
}

func (l *Loop) logHandshakeError(msg domain.Message, err error) {
	var (
		timeoutErr *TimeoutError
		connErr    *ConnectionError
		remoteErr  *RemoteError
		decodeErr  *DecodeError
	)
	switch {
	case errors.As(err, &timeoutErr):
		l.logger.Error("ai handshake timeout", "platform", msg.Platform, "budget", timeoutErr.Budget)
	case errors.As(err, &connErr):
		l.logger.Error("ai endpoint unreachable", "platform", msg.Platform, "err", connErr.Err)
	case errors.As(err, &remoteErr):
		l.logger.Error("ai endpoint error", "platform", msg.Platform, "status", remoteErr.Status, "body", remoteErr.Body)
	case errors.As(err, &decodeErr):
		l.logger.Error("ai response malformed", "platform", msg.Platform, "err", decodeErr.Err)
	default:
		l.logger.Error("ai handshake failed", "platform", msg.Platform, "err", err)
	}
}

// busReplier delivers direct replies by handing them back to the channel
// that owns the originating platform session.
type busReplier struct {
	bus domain.MessageBus
}

func (r busReplier) Reply(ctx context.Context, origin *domain.Message, content string) error {
	r.bus.SendOutbound(domain.Outbound{
		Platform:  origin.Platform,
		ChatID:    origin.GroupID,
		ReplyToID: origin.MessageID,
		Content:   content,
	})
	return nil
}
