package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omalmisr/omal-responder/internal/completion"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/internal/responder"
	"github.com/omalmisr/omal-responder/internal/services"
)

const (
	maxBodyBytes     = 1 << 20 // 1 MB limit
	maxBatchComments = 500
	pingTimeout      = 15 * time.Second
)

// Server is an HTTP API server that exposes the responder.
type Server struct {
	responder   *responder.Responder
	menu        *services.Menu
	completer   completion.Completer
	concurrency int
	logger      *slog.Logger
	authToken   string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies. completer
// is only used by the deep health check and may be nil.
func NewServer(r *responder.Responder, menu *services.Menu, completer completion.Completer, concurrency int, logger *slog.Logger, authToken string) *Server {
	return &Server{
		responder:   r,
		menu:        menu,
		completer:   completer,
		concurrency: concurrency,
		logger:      logger,
		authToken:   authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	// Health check: no auth required.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Route("/v1", func(r chi.Router) {
			r.Post("/chat", s.handleChat)
			r.Post("/comments", s.handleComment)
			r.Post("/comments/batch", s.handleCommentBatch)
			r.Post("/menu", s.handleMenu)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
			r.Get("/stats", s.handleStats)
		})
		r.Handle("/debug/vars", expvar.Handler())
	})

	return r
}

// --- middleware ---

// auth enforces Bearer token authentication when authToken is set.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "" || s.completer == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := completion.Ping(ctx, s.completer); err != nil {
		s.logger.Warn("health: completion ping failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "completion": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "completion": "ok"})
}

// chatRequest is the body accepted by POST /v1/chat.
type chatRequest struct {
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SenderID == "" {
		s.writeError(w, http.StatusBadRequest, "sender_id is required")
		return
	}

	out, err := s.responder.HandleMessage(r.Context(), req.SenderID, req.Message)
	if err != nil && (out == nil || out.Reply == "") {
		s.logger.Error("chat turn failed", "sender", req.SenderID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}
	// A delivery failure still returns the reply; Delivered reports it.
	s.writeJSON(w, http.StatusOK, out)
}

// commentRequest is the body accepted by POST /v1/comments.
type commentRequest struct {
	CommentID string `json:"comment_id"`
	Message   string `json:"message"`
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.CommentID == "" {
		s.writeError(w, http.StatusBadRequest, "comment_id is required")
		return
	}

	out, err := s.responder.HandleComment(r.Context(), req.CommentID, req.Message)
	if err != nil && (out == nil || out.Reply == "") {
		s.logger.Error("comment turn failed", "comment_id", req.CommentID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to handle comment")
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// batchRequest is the body accepted by POST /v1/comments/batch.
type batchRequest struct {
	Comments []models.Comment `json:"comments"`
}

// batchResponse is returned by POST /v1/comments/batch.
type batchResponse struct {
	Results   []*responder.TurnOutcome `json:"results"`
	Responded int                      `json:"responded"`
	Errors    string                   `json:"errors,omitempty"`
}

func (s *Server) handleCommentBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Comments) > maxBatchComments {
		s.writeError(w, http.StatusBadRequest, "too many comments in one batch")
		return
	}

	outs, err := s.responder.ProcessComments(r.Context(), req.Comments, s.concurrency)
	resp := batchResponse{Results: outs}
	for _, o := range outs {
		if o != nil && !o.Skipped && o.Reply != "" {
			resp.Responded++
		}
	}
	if err != nil {
		s.logger.Warn("comment batch had failures", "error", err)
		resp.Errors = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// menuRequest is the body accepted by POST /v1/menu.
type menuRequest struct {
	Payload string `json:"payload"`
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	var req menuRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Payload == "" {
		req.Payload = services.PayloadMain
	}
	page, ok := s.menu.Lookup(req.Payload)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown menu payload")
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) sessionKey(w http.ResponseWriter, r *http.Request) (string, models.Channel, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return "", "", false
	}
	ch := models.Channel(r.URL.Query().Get("channel"))
	if ch == "" {
		ch = models.ChannelPrivate
	}
	if !ch.IsValid() {
		s.writeError(w, http.StatusBadRequest, "invalid channel")
		return "", "", false
	}
	return id, ch, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.sessionKey(w, r)
	if !ok {
		return
	}
	st, err := s.responder.Session(id, ch)
	if err != nil {
		if responder.IsSessionNotFound(err) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to get session", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.sessionKey(w, r)
	if !ok {
		return
	}
	if err := s.responder.ClearSession(id, ch); err != nil {
		if responder.IsSessionNotFound(err) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to clear session", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.responder.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

// decode reads a size-limited JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
