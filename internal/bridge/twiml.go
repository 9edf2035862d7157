package bridge

import "strings"

// TwiMLEmpty is the well-formed reply document carrying no message. The
// webhook caller expects a valid document even when there is nothing to
// say.
const TwiMLEmpty = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// twimlEscaper escapes the XML-significant characters in one pass over the
// raw content, so each character is escaped exactly once.
var twimlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// TwiMLMessage builds the TwiML reply document that delivers text back to
// the webhook sender.
func TwiMLMessage(text string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response><Message>`)
	twimlEscaper.WriteString(&b, text)
	b.WriteString(`</Message></Response>`)
	return b.String()
}
