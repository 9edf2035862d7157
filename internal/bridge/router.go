package bridge

import (
	"context"
	"log/slog"
	"strings"

	"chatbridge/internal/domain"
)

// Replier delivers a reply to the conversation a message came from, using
// the platform's direct reply API.
type Replier interface {
	Reply(ctx context.Context, origin *domain.Message, content string) error
}

// Delivery carries the per-event delivery context the router dispatches
// through. For direct-reply platforms Replier must be set; the webhook
// platform needs none, its reply is the returned document.
type Delivery struct {
	Replier Replier
}

// Result reports what the router did with one answer.
type Result struct {
	// Delivered is true when a direct reply call succeeded.
	Delivered bool
	// Document is the inline webhook-response body for whatsapp-originated
	// messages. Always a well-formed TwiML document, possibly empty of
	// content, so the waiting webhook caller is never left without a
	// response.
	Document string
}

// Router picks the delivery mechanism for an AI answer strictly by the
// origin platform: direct reply call (telegram, discord) or inline TwiML
// document (whatsapp). Callback-ingress pushes never pass through here;
// they are an independent entry point.
type Router struct {
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{logger: logger}
}

// Route delivers the answer for one inbound-originated event. Delivery
// failures are logged, never propagated and never retried.
func (r *Router) Route(ctx context.Context, ans domain.Answer, origin *domain.Message, d Delivery) Result {
	content := strings.TrimSpace(ans.Content)
	respond := ans.ShouldRespond && content != ""

	if origin.Platform == domain.PlatformWhatsApp {
		if !respond {
			return Result{Document: TwiMLEmpty}
		}
		return Result{Delivered: true, Document: TwiMLMessage(content)}
	}

	if !respond {
		r.logger.Debug("no reply for message",
			"platform", origin.Platform,
			"group_id", origin.GroupID,
		)
		return Result{}
	}

	if d.Replier == nil {
		r.logger.Warn("no replier for platform", "platform", origin.Platform)
		return Result{}
	}

	if err := d.Replier.Reply(ctx, origin, content); err != nil {
		r.logger.Error("reply delivery failed",
			"platform", origin.Platform,
			"group_id", origin.GroupID,
			"err", err,
		)
		return Result{}
	}

	return Result{Delivered: true}
}
