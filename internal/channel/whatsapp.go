package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatbridge/internal/bridge"
	"chatbridge/internal/domain"
)

const maxFormSize = 1 << 20 // 1MB

// WhatsApp implements the Twilio-style webhook channel. Unlike the polling
// channels it answers synchronously: the webhook caller is still waiting,
// so the AI handshake happens inside the request and the reply travels
// back as the TwiML response document. The message bus is not involved.
type WhatsApp struct {
	port   int
	path   string
	client *bridge.Client
	router *bridge.Router
	logger *slog.Logger
	server *http.Server
}

// WhatsAppConfig configures the WhatsApp webhook channel.
type WhatsAppConfig struct {
	Port   int
	Path   string // webhook URL path (default: /whatsapp)
	Client *bridge.Client
	Router *bridge.Router
	Logger *slog.Logger
}

// NewWhatsApp creates a new WhatsApp webhook channel.
func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.Path == "" {
		cfg.Path = "/whatsapp"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	return &WhatsApp{
		port:   cfg.Port,
		path:   cfg.Path,
		client: cfg.Client,
		router: cfg.Router,
		logger: cfg.Logger,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

// Start begins the webhook HTTP server.
func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	// The webhook replies inline; outbound messages routed here have
	// nowhere to go.
	bus.OnOutbound(domain.PlatformWhatsApp, func(msg domain.Outbound) {
		if msg.Content != "" {
			w.logger.Debug("whatsapp outbound ignored (replies are inline)", "chat_id", msg.ChatID)
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+w.path, w.handleWebhook)
	mux.HandleFunc("GET "+w.path, w.handleWebhook) // Twilio can use GET for status

	w.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", w.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("whatsapp webhook starting", "port", w.port, "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("whatsapp webhook shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("whatsapp webhook server: %w", err)
	}
}

func (w *WhatsApp) Stop() error { return nil }

// handleWebhook processes one inbound webhook event end to end. The caller
// always gets a well-formed TwiML document with HTTP 200, empty when there
// is nothing to say or when anything went wrong internally.
func (w *WhatsApp) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	var form url.Values
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(rw, r.Body, maxFormSize)
		if err := r.ParseForm(); err != nil {
			w.logger.Warn("whatsapp malformed webhook body", "err", err)
			writeTwiML(rw, bridge.TwiMLEmpty)
			return
		}
		form = r.PostForm
	} else {
		form = r.URL.Query()
	}

	msg, ok := normalizeWhatsApp(form)
	if !ok {
		writeTwiML(rw, bridge.TwiMLEmpty)
		return
	}

	w.logger.Info("whatsapp message received",
		"from", msg.UserID,
		"content_len", len(msg.Content),
	)

	ans, err := w.client.Ask(r.Context(), &msg)
	if err != nil {
		w.logger.Error("whatsapp handshake failed", "from", msg.UserID, "err", err)
		writeTwiML(rw, bridge.TwiMLEmpty)
		return
	}

	res := w.router.Route(r.Context(), ans, &msg, bridge.Delivery{})
	writeTwiML(rw, res.Document)
}

// normalizeWhatsApp turns the form-encoded webhook fields into the
// canonical record. Returns false when the body is blank.
func normalizeWhatsApp(form url.Values) (domain.Message, bool) {
	body := strings.TrimSpace(form.Get("Body"))
	if body == "" {
		return domain.Message{}, false
	}

	from := form.Get("From")
	userName := from
	if userName == "" {
		userName = "Unknown"
	}

	messageID := form.Get("MessageSid")
	if messageID == "" {
		messageID = "wa_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	return domain.Message{
		Platform:  domain.PlatformWhatsApp,
		GroupID:   from,
		UserID:    from,
		UserName:  userName,
		Content:   body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: messageID,
	}, true
}

func writeTwiML(rw http.ResponseWriter, doc string) {
	rw.Header().Set("Content-Type", "text/xml")
	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, doc)
}
