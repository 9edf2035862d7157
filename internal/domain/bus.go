package domain

// MessageBus routes canonical messages between channels and the bridge loop.
type MessageBus interface {
	Publish(msg Message)
	Subscribe() <-chan Message
	SendOutbound(msg Outbound)
	OnOutbound(platform Platform, handler func(Outbound))
	Close()
}
