package domain

// Platform identifies the messaging system a message originated from.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
	PlatformWhatsApp Platform = "whatsapp"
)

// Message is the canonical record produced from any platform-specific
// inbound event. It is built once by a channel's normalizer, never mutated,
// and consumed by exactly one bridge task.
//
// Content is never empty: events with no usable content are dropped before
// a Message is constructed. Timestamp is RFC3339 and always carries a zone
// designator (naive platform timestamps are assumed UTC).
type Message struct {
	Platform  Platform `json:"platform"`
	GroupID   string   `json:"group_id"`
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	MessageID string   `json:"message_id"`

	// CallbackURL is set only when the origin platform supports
	// asynchronous push-back delivery; it points at that platform's
	// callback ingress send endpoint.
	CallbackURL string `json:"callback_url,omitempty"`
}

// Answer is what the AI endpoint decided about one message. When
// ShouldRespond is false the Content is meaningless and nothing is
// delivered on the inbound-originated paths.
type Answer struct {
	ShouldRespond bool
	Content       string
}

// Outbound is a routed reply on its way back to the originating channel.
type Outbound struct {
	Platform  Platform
	ChatID    string
	ReplyToID string // origin message to reply to; empty = plain send
	Content   string
}
