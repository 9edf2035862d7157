package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatbridge/internal/domain"
)

const (
	// defaultHandshakeTimeout is the fixed wait budget for one AI call.
	// The historical bridges used anything from 15s to 60s; 30s is the
	// documented middle ground.
	defaultHandshakeTimeout = 30 * time.Second

	maxResponseBody = 1 << 20 // 1MB
	bodyExcerptLen  = 512
)

// Client performs the AI handshake: one POST of a canonical message to the
// configured endpoint, one decoded answer. No retry, no caching.
type Client struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// ClientConfig configures the handshake client.
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration // zero = defaultHandshakeTimeout
	Logger   *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHandshakeTimeout
	}
	return &Client{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}
}

// Endpoint returns the configured AI endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Ask sends one canonical message to the AI endpoint and decodes the
// answer. Failures are reported as *TimeoutError, *ConnectionError,
// *RemoteError or *DecodeError; an answer that merely declines to respond
// is not an error.
func (c *Client) Ask(ctx context.Context, msg *domain.Message) (domain.Answer, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.Answer{}, &TimeoutError{Endpoint: c.endpoint, Budget: c.timeout}
		}
		return domain.Answer{}, &ConnectionError{Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if isTimeout(err) {
			return domain.Answer{}, &TimeoutError{Endpoint: c.endpoint, Budget: c.timeout}
		}
		return domain.Answer{}, &ConnectionError{Endpoint: c.endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Answer{}, &RemoteError{Status: resp.StatusCode, Body: excerpt(raw)}
	}

	return decodeAnswer(raw)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyExcerptLen {
		s = s[:bodyExcerptLen]
	}
	return s
}

// aiEnvelope covers the three historical response shapes the endpoint is
// permitted to return. Response and Message stay raw because each may be a
// string or an object.
type aiEnvelope struct {
	ShouldRespond *bool           `json:"should_respond"`
	Response      json.RawMessage `json:"response"`
	Message       json.RawMessage `json:"message"`
}

// decodeAnswer applies the ordered-fallback decoding of the accepted
// response shapes:
//
//  1. {"should_respond": bool, "response": {"content": "..."}}
//  2. {"should_respond": bool, "response": "..."} or {..., "message": "..."}
//  3. legacy {"response": ...} / {"message": ...} without should_respond,
//     treated as always responding.
//
// Anything that does not parse, and any content that is blank after
// trimming, degrades to a declined answer rather than an error.
func decodeAnswer(raw []byte) (domain.Answer, error) {
	var env aiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Answer{}, &DecodeError{Err: err}
	}

	if env.ShouldRespond != nil && !*env.ShouldRespond {
		return domain.Answer{}, nil
	}

	content := extractContent(env.Response)
	if content == "" {
		content = extractContent(env.Message)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Answer{}, nil
	}

	return domain.Answer{ShouldRespond: true, Content: content}, nil
}

// extractContent pulls text out of a response field that may be an object
// carrying a "content" key or a bare string.
func extractContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Content != "" {
		return obj.Content
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
