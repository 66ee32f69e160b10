// Package server exposes the chat engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"hound-taskchat/internal/chat"
	"hound-taskchat/internal/i18n"
	apperrors "hound-taskchat/shared/errors"
	"hound-taskchat/shared/idempotency"
	"hound-taskchat/shared/logging"
)

// Version is reported by /v1/health.
const Version = "1.0.0"

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 64 << 10

// Error codes of the error envelope.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeInternal       = "internal_error"
)

// Chatter runs one chat turn.
type Chatter interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Options configures a Server.
type Options struct {
	// APIToken, when set, must match the bearer token. Otherwise any
	// Authorization header is accepted.
	APIToken       string
	LLMEnabled     bool
	DefaultDialect string
	// SMS, when set, is mounted at /webhooks/sms.
	SMS http.Handler
}

// Server is the chat HTTP server.
type Server struct {
	chat       Chatter
	opts       Options
	logger     *logging.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server and its routes.
func New(c Chatter, logger *logging.Logger, opts Options) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.DefaultDialect == "" {
		opts.DefaultDialect = i18n.DefaultDialect
	}
	s := &Server{chat: c, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealthV1)
	r.With(s.requireAuth).Post("/v1/chat", s.handleChat)
	if opts.SMS != nil {
		r.Method(http.MethodPost, "/webhooks/sms", opts.SMS)
	}

	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening on %s", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthV1(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"version":     Version,
		"llm_enabled": s.opts.LLMEnabled,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	var req chat.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.logger.Warn("Rejected chat body: %v", err)
		s.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "ERR_INVALID_REQUEST", s.opts.DefaultDialect, reqID)
		return
	}
	noteRequest(r.Context(), req.UserID, req.Dialect)

	// a client-chosen id makes retries replay the stored response
	clientID := req.RequestID
	if clientID == "" {
		clientID = r.Header.Get(middleware.RequestIDHeader)
	}
	if clientID != "" {
		req.RequestID = clientID
		req.IdempotencyKey = idempotency.GenerateKey("http", req.UserID, clientID)
	} else {
		req.RequestID = reqID
	}

	resp, err := s.chat.Handle(r.Context(), req)
	if err != nil {
		dialect := req.Dialect
		if !i18n.ValidDialect(dialect) {
			dialect = s.opts.DefaultDialect
		}
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			s.logger.Warn("Invalid chat request %s: %v", req.RequestID, err)
			s.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "ERR_INVALID_REQUEST", dialect, req.RequestID)
			return
		}
		s.logger.Error("Chat turn %s failed: %v", req.RequestID, err)
		s.writeError(w, http.StatusInternalServerError, CodeInternal, "ERR_INTERNAL", dialect, req.RequestID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r.Header.Get("Authorization")) {
			s.writeError(w, http.StatusUnauthorized, CodeUnauthorized, "ERR_UNAUTHORIZED", s.opts.DefaultDialect, middleware.GetReqID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(header string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if s.opts.APIToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	return ok && strings.TrimSpace(token) == s.opts.APIToken
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, key, dialect, requestID string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:      code,
		Message:   i18n.Render(dialect, key, nil),
		RequestID: requestID,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestNote collects request fields known only after the body is read.
type requestNote struct {
	userID  string
	dialect string
}

type noteKey struct{}

func noteRequest(ctx context.Context, userID, dialect string) {
	if n, ok := ctx.Value(noteKey{}).(*requestNote); ok {
		n.userID, n.dialect = userID, dialect
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		note := &requestNote{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), noteKey{}, note)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Zap().Info("request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Int("status", status),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.String("userId", note.userID),
			zap.String("dialect", note.dialect),
			zap.Int64("latencyMs", time.Since(start).Milliseconds()),
		)
	})
}
