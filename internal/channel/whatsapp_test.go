package channel

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"chatbridge/internal/bridge"
)

func whatsAppUnderTest(t *testing.T, ai http.HandlerFunc) *WhatsApp {
	t.Helper()
	srv := httptest.NewServer(ai)
	t.Cleanup(srv.Close)
	return newWhatsAppFor(t, srv.URL)
}

func newWhatsAppFor(t *testing.T, endpoint string) *WhatsApp {
	t.Helper()
	logger := testLogger()
	return NewWhatsApp(WhatsAppConfig{
		Client: bridge.NewClient(bridge.ClientConfig{Endpoint: endpoint, Logger: logger}),
		Router: bridge.NewRouter(logger),
		Logger: logger,
	})
}

func postForm(t *testing.T, w *WhatsApp, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	w.handleWebhook(rec, req)
	return rec
}

func TestWebhook_ReplyDocument(t *testing.T) {
	w := whatsAppUnderTest(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"should_respond": true, "response": {"content": "Hello back"}}`))
	})

	rec := postForm(t, w, url.Values{
		"Body":       {"Hello"},
		"From":       {"whatsapp:+15551234567"},
		"MessageSid": {"SM123"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<Message>Hello back</Message>") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestWebhook_AIUnreachableStillAnswers(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	w := newWhatsAppFor(t, endpoint)

	rec := postForm(t, w, url.Values{
		"Body": {"anyone there?"},
		"From": {"whatsapp:+15551234567"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("webhook caller must always get 200, got %d", rec.Code)
	}
	if rec.Body.String() != bridge.TwiMLEmpty {
		t.Errorf("expected empty document, got %s", rec.Body.String())
	}
}

func TestWebhook_DeclinedAnswerGetsEmptyDocument(t *testing.T) {
	w := whatsAppUnderTest(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"should_respond": false}`))
	})

	rec := postForm(t, w, url.Values{"Body": {"hi"}, "From": {"whatsapp:+1555"}})

	if rec.Code != http.StatusOK || rec.Body.String() != bridge.TwiMLEmpty {
		t.Errorf("status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestWebhook_BlankBodyDropped(t *testing.T) {
	var called atomic.Bool
	w := whatsAppUnderTest(t, func(rw http.ResponseWriter, r *http.Request) {
		called.Store(true)
		rw.Write([]byte(`{"response": "should not happen"}`))
	})

	rec := postForm(t, w, url.Values{"Body": {"   "}, "From": {"whatsapp:+1555"}})

	if rec.Code != http.StatusOK || rec.Body.String() != bridge.TwiMLEmpty {
		t.Errorf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if called.Load() {
		t.Error("blank body must not reach the AI endpoint")
	}
}

func TestWebhook_GETQueryVariant(t *testing.T) {
	w := whatsAppUnderTest(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"response": "via GET"}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/whatsapp?Body=status&From=whatsapp:%2B1555", nil)
	rec := httptest.NewRecorder()
	w.handleWebhook(rec, req)

	if !strings.Contains(rec.Body.String(), "<Message>via GET</Message>") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestNormalizeWhatsApp(t *testing.T) {
	msg, ok := normalizeWhatsApp(url.Values{
		"Body":       {"  hi there  "},
		"From":       {"whatsapp:+15551234567"},
		"MessageSid": {"SM42"},
	})
	if !ok {
		t.Fatal("expected normalization")
	}
	if msg.Platform != "whatsapp" {
		t.Errorf("platform = %s", msg.Platform)
	}
	if msg.Content != "hi there" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.GroupID != "whatsapp:+15551234567" || msg.UserID != msg.GroupID {
		t.Errorf("sender fields: %+v", msg)
	}
	if msg.MessageID != "SM42" {
		t.Errorf("message id = %s", msg.MessageID)
	}
}

func TestNormalizeWhatsApp_GeneratedMessageID(t *testing.T) {
	msg, ok := normalizeWhatsApp(url.Values{"Body": {"x"}, "From": {"whatsapp:+1"}})
	if !ok {
		t.Fatal("expected normalization")
	}
	if !strings.HasPrefix(msg.MessageID, "wa_") {
		t.Errorf("generated id = %s", msg.MessageID)
	}
}

func TestNormalizeWhatsApp_MissingSender(t *testing.T) {
	msg, ok := normalizeWhatsApp(url.Values{"Body": {"hello"}})
	if !ok {
		t.Fatal("expected normalization")
	}
	if msg.UserName != "Unknown" {
		t.Errorf("user name = %q", msg.UserName)
	}
}
