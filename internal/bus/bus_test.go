package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"chatbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	msg := domain.Message{Platform: domain.PlatformTelegram, GroupID: "1", Content: "hello"}
	b.Publish(msg)

	select {
	case got := <-b.Subscribe():
		if got.Content != "hello" {
			t.Errorf("got content %q", got.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSendOutboundDispatchesToHandler(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	got := make(chan domain.Outbound, 1)
	b.OnOutbound(domain.PlatformDiscord, func(msg domain.Outbound) {
		got <- msg
	})

	b.SendOutbound(domain.Outbound{Platform: domain.PlatformDiscord, ChatID: "c1", Content: "reply"})

	select {
	case out := <-got:
		if out.ChatID != "c1" || out.Content != "reply" {
			t.Errorf("unexpected outbound %+v", out)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestSendOutboundWithoutHandlerIsDropped(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	// No handler registered; must not panic.
	b.SendOutbound(domain.Outbound{Platform: domain.PlatformWhatsApp, Content: "nowhere"})
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New(10, testLogger())
	b.Close()
	b.Close() // idempotent

	b.Publish(domain.Message{Content: "late"})

	if _, ok := <-b.Subscribe(); ok {
		t.Error("closed bus should deliver nothing")
	}
}
