package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatbridge/internal/domain"
)

type fakeReplier struct {
	calls   int
	origin  *domain.Message
	content string
	err     error
}

func (f *fakeReplier) Reply(ctx context.Context, origin *domain.Message, content string) error {
	f.calls++
	f.origin = origin
	f.content = content
	return f.err
}

func TestRoute_DirectReply(t *testing.T) {
	router := NewRouter(testLogger())
	replier := &fakeReplier{}
	origin := testMessage()

	res := router.Route(context.Background(), domain.Answer{ShouldRespond: true, Content: "Hi there"}, origin, Delivery{Replier: replier})

	if !res.Delivered {
		t.Error("expected delivered result")
	}
	if replier.calls != 1 {
		t.Fatalf("expected exactly one reply, got %d", replier.calls)
	}
	if replier.content != "Hi there" {
		t.Errorf("expected reply 'Hi there', got %q", replier.content)
	}
	if replier.origin != origin {
		t.Error("reply should target the origin message")
	}
	if res.Document != "" {
		t.Error("direct platforms should not produce a document")
	}
}

func TestRoute_DeclinedAnswerSendsNothing(t *testing.T) {
	router := NewRouter(testLogger())
	replier := &fakeReplier{}

	res := router.Route(context.Background(), domain.Answer{ShouldRespond: false, Content: "ignored"}, testMessage(), Delivery{Replier: replier})

	if replier.calls != 0 {
		t.Errorf("declined answer must not be delivered, got %d calls", replier.calls)
	}
	if res.Delivered {
		t.Error("result should not report delivery")
	}
}

func TestRoute_BlankContentSendsNothing(t *testing.T) {
	router := NewRouter(testLogger())
	replier := &fakeReplier{}

	router.Route(context.Background(), domain.Answer{ShouldRespond: true, Content: "  \n "}, testMessage(), Delivery{Replier: replier})

	if replier.calls != 0 {
		t.Errorf("blank content must not be delivered, got %d calls", replier.calls)
	}
}

func TestRoute_DeliveryFailureIsSwallowed(t *testing.T) {
	router := NewRouter(testLogger())
	replier := &fakeReplier{err: errors.New("network down")}

	res := router.Route(context.Background(), domain.Answer{ShouldRespond: true, Content: "Hi"}, testMessage(), Delivery{Replier: replier})

	if res.Delivered {
		t.Error("failed delivery must not report success")
	}
	if replier.calls != 1 {
		t.Errorf("exactly one attempt expected, got %d", replier.calls)
	}
}

func TestRoute_WhatsAppAnswerDocument(t *testing.T) {
	router := NewRouter(testLogger())
	origin := testMessage()
	origin.Platform = domain.PlatformWhatsApp

	res := router.Route(context.Background(), domain.Answer{ShouldRespond: true, Content: "webhook reply"}, origin, Delivery{})

	if !res.Delivered {
		t.Error("expected delivered result")
	}
	if !strings.Contains(res.Document, "<Message>webhook reply</Message>") {
		t.Errorf("unexpected document: %s", res.Document)
	}
}

func TestRoute_WhatsAppDeclinedGetsEmptyDocument(t *testing.T) {
	router := NewRouter(testLogger())
	origin := testMessage()
	origin.Platform = domain.PlatformWhatsApp

	res := router.Route(context.Background(), domain.Answer{ShouldRespond: false}, origin, Delivery{})

	if res.Document != TwiMLEmpty {
		t.Errorf("expected empty document, got %s", res.Document)
	}
	if res.Delivered {
		t.Error("declined answer should not report delivery")
	}
}

func TestTwiMLMessage_EscapesOnce(t *testing.T) {
	doc := TwiMLMessage(`use <b> & "quotes" > here`)
	want := `<?xml version="1.0" encoding="UTF-8"?><Response><Message>use &lt;b&gt; &amp; "quotes" &gt; here</Message></Response>`
	if doc != want {
		t.Errorf("got %s\nwant %s", doc, want)
	}
	if strings.Contains(doc, "&amp;lt;") || strings.Contains(doc, "&amp;amp;") {
		t.Error("content was escaped more than once")
	}
}

func TestTwiMLMessage_PlainText(t *testing.T) {
	doc := TwiMLMessage("Hello back")
	want := `<?xml version="1.0" encoding="UTF-8"?><Response><Message>Hello back</Message></Response>`
	if doc != want {
		t.Errorf("got %s\nwant %s", doc, want)
	}
}

func TestTwiMLEmpty_WellFormed(t *testing.T) {
	want := `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	if TwiMLEmpty != want {
		t.Errorf("got %s", TwiMLEmpty)
	}
}
