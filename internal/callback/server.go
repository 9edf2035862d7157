// Package callback implements the ingress server through which the AI
// endpoint pushes messages to a channel outside the inbound
// request/response cycle.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"chatbridge/internal/domain"
)

const maxBodySize = 1 << 20 // 1MB

// PushRequest is the expected JSON body for a push. The legacy field names
// group_id and message are still accepted on ingress; channel_id and
// content are the canonical ones.
type PushRequest struct {
	ChannelID string `json:"channel_id"`
	GroupID   string `json:"group_id"` // legacy alias for channel_id
	Content   string `json:"content"`
	Message   string `json:"message"` // legacy alias for content
}

// Target returns the delivery target, preferring the canonical field.
func (p PushRequest) Target() string {
	if p.ChannelID != "" {
		return p.ChannelID
	}
	return p.GroupID
}

// Text returns the text to deliver, preferring the canonical field.
func (p PushRequest) Text() string {
	if strings.TrimSpace(p.Content) != "" {
		return p.Content
	}
	return p.Message
}

// Server is the callback ingress: one POST endpoint per registered
// platform plus health checks. It runs alongside the inbound-event flow
// and shares only the read-only platform sessions behind the registered
// pushers.
type Server struct {
	port    int
	logger  *slog.Logger
	targets map[string]domain.Pusher
	server  *http.Server
	ln      net.Listener
}

// ServerConfig configures the callback ingress server.
type ServerConfig struct {
	Port   int
	Logger *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Server{
		port:    cfg.Port,
		logger:  cfg.Logger,
		targets: make(map[string]domain.Pusher),
	}
}

// Register makes a platform's pusher reachable at POST /{platform}/send.
// Call before Listen; the registry is read-only once serving.
func (s *Server) Register(platform domain.Platform, pusher domain.Pusher) {
	s.targets[string(platform)] = pusher
}

// Handler returns the ingress HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /{platform}/send", s.handleSend)
	return mux
}

// Listen binds the listener on all interfaces. It is called synchronously
// before the platform sessions connect, so hosting health checks succeed
// while the gateway handshake is still in flight.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("callback ingress listen: %w", err)
	}
	s.ln = ln
	s.logger.Info("callback ingress listening", "port", s.port)
	return nil
}

// Serve runs the ingress until the context is cancelled. Listen must have
// been called first.
func (s *Server) Serve(ctx context.Context) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("callback ingress shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("callback ingress: %w", err)
	}
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSend(rw http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	defer r.Body.Close()

	var req PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	target := req.Target()
	if target == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "channel_id is required"})
		return
	}
	text := strings.TrimSpace(req.Text())
	if text == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	pusher, ok := s.targets[platform]
	if !ok {
		writeJSON(rw, http.StatusNotFound, map[string]string{"error": "unknown platform: " + platform})
		return
	}

	s.logger.Info("callback push received",
		"platform", platform,
		"channel_id", target,
		"content_len", len(text),
	)

	if err := pusher.Push(r.Context(), target, text); err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			writeJSON(rw, http.StatusNotFound, map[string]string{"error": "channel not found: " + target})
			return
		}
		s.logger.Error("callback push failed", "platform", platform, "channel_id", target, "err", err)
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(rw, http.StatusOK, map[string]string{"status": "sent", "channel_id": target})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
