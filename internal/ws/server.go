// Package ws is the relay server: it starts investigations and streams
// their observations to websocket clients, one channel per session.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/procurewatch/investigator/internal/metrics"
	"github.com/procurewatch/investigator/internal/pipeline"
	"github.com/rs/zerolog"
)

// Launcher starts investigations in the background.
type Launcher interface {
	Start(tenderID, sessionID string) error
	Active() int
}

type investigateRequest struct {
	TenderID  string `json:"tender_id"`
	SessionID string `json:"session_id,omitempty"`
}

type investigateResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type Options struct {
	AuthToken      string
	AllowedOrigins []string
}

type Server struct {
	hub            *Hub
	launcher       Launcher
	metrics        *metrics.Metrics
	health         *HealthReporter
	log            zerolog.Logger
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(hub *Hub, launcher Launcher, m *metrics.Metrics, opts Options, log zerolog.Logger) *Server {
	s := &Server{
		hub:            hub,
		launcher:       launcher,
		metrics:        m,
		log:            log.With().Str("component", "server").Logger(),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      opts.AuthToken,
	}
	s.health = NewHealthReporter(hub, launcher)

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Handler returns the routed, header-hardened handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/investigate", s.handleInvestigate)
	mux.HandleFunc("GET /api/ws/{session_id}", s.handleWS)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req investigateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.TenderID = strings.TrimSpace(req.TenderID)
	if req.TenderID == "" {
		http.Error(w, "tender_id required", http.StatusBadRequest)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if err := s.launcher.Start(req.TenderID, sessionID); err != nil {
		status := http.StatusServiceUnavailable
		if !errors.Is(err, pipeline.ErrBusy) {
			status = http.StatusInternalServerError
		}
		s.log.Warn().Err(err).Str("session", sessionID).Msg("investigation not started")
		http.Error(w, err.Error(), status)
		return
	}

	s.log.Info().Str("session", sessionID).Str("tender", req.TenderID).Msg("investigation started")
	writeJSON(w, investigateResponse{
		SessionID: sessionID,
		Message:   fmt.Sprintf("Investigation started. Connect to WebSocket at /api/ws/%s for real-time updates.", sessionID),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	c, err := s.hub.AddClient(sessionID, conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws client rejected")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.log.Info().Str("session", sessionID).Str("remote", r.RemoteAddr).Msg("websocket client connected")
	c.readPump()
	s.hub.RemoveClient(c)
	s.log.Info().Str("session", sessionID).Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.health.Report(r.Context()))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Investigator-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves handler on addr until ctx is cancelled, then
// shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
