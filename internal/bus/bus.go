package bus

import (
	"log/slog"
	"sync"
	"time"

	"chatbridge/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus for in-process communication
// between platform channels and the bridge loop.
type InMemoryBus struct {
	inbound  chan domain.Message
	handlers map[domain.Platform]func(domain.Outbound)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.Message, bufferSize),
		handlers: make(map[domain.Platform]func(domain.Outbound)),
		logger:   logger,
	}
}

// Publish hands an inbound canonical message to the bridge loop.
// Blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "platform", msg.Platform, "sender", msg.UserID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "platform", msg.Platform)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"platform", msg.Platform,
				"sender", msg.UserID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Message {
	return b.inbound
}

func (b *InMemoryBus) SendOutbound(msg domain.Outbound) {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Platform]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler registered for platform",
			"platform", msg.Platform,
		)
		return
	}

	handler(msg)
}

func (b *InMemoryBus) OnOutbound(platform domain.Platform, handler func(domain.Outbound)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[platform] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
